package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type Config struct {
	L           *logger.Logger
	IDGenerator idGenerator
	Now         func() time.Time
}

// DB is the in-process store. It serves as the last-resort cache behind the
// durable store and as the whole store in tests and demo mode.
type DB struct {
	mu             sync.Mutex
	l              *logger.Logger
	idGenerator    idGenerator
	now            func() time.Time
	reservations   map[string]*reservation.Reservation
	deposits       map[string]*reservation.Deposit
	events         map[string][]*reservation.Event
	providerEvents map[string]time.Time
	transactions   map[string]*transaction
	nextTrxID      int64
}

func New(conf Config) *DB {
	now := conf.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	//nolint:exhaustruct
	return &DB{
		l:              conf.L,
		idGenerator:    conf.IDGenerator,
		now:            now,
		reservations:   make(map[string]*reservation.Reservation),
		deposits:       make(map[string]*reservation.Deposit),
		events:         make(map[string][]*reservation.Event),
		providerEvents: make(map[string]time.Time),
		transactions:   make(map[string]*transaction),
	}
}

func (db *DB) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.openTransaction(ctx)
	if err != nil {
		return nil, err
	}

	if trx != nil {
		if staged, ok := trx.reservationModifications[id]; ok {
			res := *staged

			return &res, nil
		}
	}

	stored, ok := db.reservations[id]
	if !ok {
		return nil, reservation.ErrRecordNotFound
	}

	res := *stored

	return &res, nil
}

func (db *DB) UpsertMerge(ctx context.Context, id string, patch reservation.Patch) (*reservation.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.openTransaction(ctx)
	if err != nil {
		return nil, err
	}

	base := reservation.NewReservation(id)
	base.CreatedAt = db.now()

	if stored, ok := db.reservations[id]; ok {
		base = *stored
	}

	if trx != nil {
		if staged, ok := trx.reservationModifications[id]; ok {
			base = *staged
		}
	}

	next := reservation.Apply(base, patch)
	next.UpdatedAt = db.now()

	if trx != nil {
		trx.reservationModifications[id] = &next
	} else {
		db.reservations[id] = &next
	}

	res := next

	return &res, nil
}

// Put stores res as given, bypassing the merge. Mirrors of durable writes go through here.
func (db *DB) Put(_ context.Context, res *reservation.Reservation) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored := *res
	db.reservations[res.ID] = &stored

	return nil
}

func (db *DB) ListRecent(_ context.Context, limit int) ([]*reservation.Reservation, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := make([]*reservation.Reservation, 0, len(db.reservations))

	for _, stored := range db.reservations {
		res := *stored
		result = append(result, &res)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Dates.Checkin != result[j].Dates.Checkin {
			return result[i].Dates.Checkin > result[j].Dates.Checkin
		}

		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (db *DB) AppendEvent(ctx context.Context, id, message string, meta map[string]any) error {
	eventID, err := db.idGenerator.GetID(ctx)
	if err != nil {
		return fmt.Errorf("get next event id: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.openTransaction(ctx)
	if err != nil {
		return err
	}

	event := &reservation.Event{
		ID:            eventID,
		ReservationID: id,
		Message:       message,
		Meta:          meta,
		CreatedAt:     db.now(),
	}

	if trx != nil {
		trx.eventModifications = append(trx.eventModifications, event)

		return nil
	}

	db.events[id] = append(db.events[id], event)

	return nil
}

func (db *DB) ListEvents(_ context.Context, id string) ([]*reservation.Event, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := make([]*reservation.Event, 0, len(db.events[id]))

	for _, event := range db.events[id] {
		e := *event
		result = append(result, &e)
	}

	return result, nil
}

func (db *DB) GetDeposit(_ context.Context, reservationID string) (*reservation.Deposit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, ok := db.deposits[reservationID]
	if !ok {
		return nil, reservation.ErrRecordNotFound
	}

	dep := *stored

	return &dep, nil
}

func (db *DB) SaveDeposit(_ context.Context, deposit *reservation.Deposit) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	dep := *deposit
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = db.now()
	}

	dep.UpdatedAt = db.now()
	db.deposits[dep.ReservationID] = &dep

	return nil
}

func (db *DB) ListDeposits(_ context.Context, limit int) ([]*reservation.Deposit, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := make([]*reservation.Deposit, 0, len(db.deposits))

	for _, stored := range db.deposits {
		dep := *stored
		result = append(result, &dep)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}

		return result[i].ReservationID < result[j].ReservationID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (db *DB) ProviderEventSeen(_ context.Context, eventID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, seen := db.providerEvents[eventID]

	return seen, nil
}

// RecordProviderEvent remembers a payment provider event id once it has been applied.
func (db *DB) RecordProviderEvent(_ context.Context, eventID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, seen := db.providerEvents[eventID]; !seen {
		db.providerEvents[eventID] = db.now()
	}

	return nil
}
