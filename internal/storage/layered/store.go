package layered

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

type backend interface {
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	Get(ctx context.Context, id string) (*reservation.Reservation, error)
	UpsertMerge(ctx context.Context, id string, patch reservation.Patch) (*reservation.Reservation, error)
	ListRecent(ctx context.Context, limit int) ([]*reservation.Reservation, error)
	AppendEvent(ctx context.Context, id, message string, meta map[string]any) error
	ListEvents(ctx context.Context, id string) ([]*reservation.Event, error)

	GetDeposit(ctx context.Context, reservationID string) (*reservation.Deposit, error)
	SaveDeposit(ctx context.Context, deposit *reservation.Deposit) error
	ListDeposits(ctx context.Context, limit int) ([]*reservation.Deposit, error)
	ProviderEventSeen(ctx context.Context, eventID string) (bool, error)
	RecordProviderEvent(ctx context.Context, eventID string) error
}

type cache interface {
	backend
	Put(ctx context.Context, res *reservation.Reservation) error
}

// Store answers from the durable primary and mirrors every successful write
// into an in-process cache. When the primary fails, the cache answers instead
// so callers never see which backing served them.
type Store struct {
	l       *logger.Logger
	primary backend
	cache   cache
}

func New(l *logger.Logger, primary backend, cache cache) *Store {
	return &Store{
		l:       l,
		primary: primary,
		cache:   cache,
	}
}

type contextKey string

const batchKey contextKey = "layeredBatch"

// batch tracks which backing owns a transaction and the mirrors to apply on commit.
type batch struct {
	mu       sync.Mutex
	onCache  bool
	mirrors  []*reservation.Reservation
	deposits []*reservation.Deposit
}

func batchFromContext(ctx context.Context) (*batch, bool) {
	b, ok := ctx.Value(batchKey).(*batch)

	return b, ok && b != nil
}

func (s *Store) BeginTransaction(ctx context.Context) (context.Context, error) {
	trxCtx, err := s.primary.BeginTransaction(ctx)
	if err == nil {
		return context.WithValue(trxCtx, batchKey, &batch{}), nil //nolint:exhaustruct
	}

	if reservation.DurableWritesFromContext(ctx) {
		return nil, fmt.Errorf("begin primary transaction: %w", err)
	}

	s.l.LogWarnf("Primary store could not begin a transaction, staging in cache: %v", err.Error())

	trxCtx, err = s.cache.BeginTransaction(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin cache transaction: %w", err)
	}

	return context.WithValue(trxCtx, batchKey, &batch{onCache: true}), nil //nolint:exhaustruct
}

func (s *Store) CommitTransaction(ctx context.Context) error {
	b, ok := batchFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	if b.onCache {
		return s.cache.CommitTransaction(ctx)
	}

	if err := s.primary.CommitTransaction(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, res := range b.mirrors {
		s.mirror(ctx, res)
	}

	for _, dep := range b.deposits {
		s.mirrorDeposit(ctx, dep)
	}

	return nil
}

func (s *Store) RollbackTransaction(ctx context.Context) error {
	b, ok := batchFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	if b.onCache {
		return s.cache.RollbackTransaction(ctx)
	}

	return s.primary.RollbackTransaction(ctx)
}

// route reports the backend a call should go to and whether it may fall back
// to the cache. Inside a primary transaction a fallback would split the batch,
// and a ctx requiring durable writes never falls back.
func (s *Store) route(ctx context.Context) (backend, bool) {
	b, ok := batchFromContext(ctx)
	if !ok {
		return s.primary, !reservation.DurableWritesFromContext(ctx)
	}

	if b.onCache {
		return s.cache, false
	}

	return s.primary, false
}

func (s *Store) fallback(op string, err error) {
	s.l.LogWarnf("Primary store failed to %s, answering from cache: %v", op, err.Error())
}

func (s *Store) mirror(ctx context.Context, res *reservation.Reservation) {
	if err := s.cache.Put(context.WithoutCancel(ctx), res); err != nil {
		s.l.LogErrorf("Could not mirror reservation %v into cache: %v", res.ID, err.Error())
	}
}

func (s *Store) mirrorDeposit(ctx context.Context, dep *reservation.Deposit) {
	if err := s.cache.SaveDeposit(context.WithoutCancel(ctx), dep); err != nil {
		s.l.LogErrorf("Could not mirror deposit %v into cache: %v", dep.ReservationID, err.Error())
	}
}

func (s *Store) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	target, canFallback := s.route(ctx)

	res, err := target.Get(ctx, id)
	if err == nil || errors.Is(err, reservation.ErrRecordNotFound) || !canFallback {
		return res, err
	}

	s.fallback("get reservation", err)

	return s.cache.Get(ctx, id)
}

func (s *Store) UpsertMerge(ctx context.Context, id string, patch reservation.Patch) (*reservation.Reservation, error) {
	target, canFallback := s.route(ctx)

	res, err := target.UpsertMerge(ctx, id, patch)
	if err != nil {
		if !canFallback {
			return nil, err
		}

		s.fallback("upsert reservation", err)

		return s.cache.UpsertMerge(ctx, id, patch)
	}

	if target == s.cache {
		return res, nil
	}

	if b, ok := batchFromContext(ctx); ok {
		b.mu.Lock()
		b.mirrors = append(b.mirrors, res)
		b.mu.Unlock()

		return res, nil
	}

	s.mirror(ctx, res)

	return res, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]*reservation.Reservation, error) {
	target, canFallback := s.route(ctx)

	res, err := target.ListRecent(ctx, limit)
	if err == nil || !canFallback {
		return res, err
	}

	s.fallback("list reservations", err)

	return s.cache.ListRecent(ctx, limit)
}

func (s *Store) AppendEvent(ctx context.Context, id, message string, meta map[string]any) error {
	target, canFallback := s.route(ctx)

	err := target.AppendEvent(ctx, id, message, meta)
	if err == nil || !canFallback {
		return err
	}

	s.fallback("append event", err)

	return s.cache.AppendEvent(ctx, id, message, meta)
}

func (s *Store) ListEvents(ctx context.Context, id string) ([]*reservation.Event, error) {
	target, canFallback := s.route(ctx)

	events, err := target.ListEvents(ctx, id)
	if err == nil || !canFallback {
		return events, err
	}

	s.fallback("list events", err)

	return s.cache.ListEvents(ctx, id)
}

func (s *Store) GetDeposit(ctx context.Context, reservationID string) (*reservation.Deposit, error) {
	target, canFallback := s.route(ctx)

	dep, err := target.GetDeposit(ctx, reservationID)
	if err == nil || errors.Is(err, reservation.ErrRecordNotFound) || !canFallback {
		return dep, err
	}

	s.fallback("get deposit", err)

	return s.cache.GetDeposit(ctx, reservationID)
}

func (s *Store) SaveDeposit(ctx context.Context, deposit *reservation.Deposit) error {
	target, canFallback := s.route(ctx)

	if err := target.SaveDeposit(ctx, deposit); err != nil {
		if !canFallback {
			return err
		}

		s.fallback("save deposit", err)

		return s.cache.SaveDeposit(ctx, deposit)
	}

	if target == s.cache {
		return nil
	}

	if b, ok := batchFromContext(ctx); ok {
		dep := *deposit

		b.mu.Lock()
		b.deposits = append(b.deposits, &dep)
		b.mu.Unlock()

		return nil
	}

	s.mirrorDeposit(ctx, deposit)

	return nil
}

func (s *Store) ListDeposits(ctx context.Context, limit int) ([]*reservation.Deposit, error) {
	target, canFallback := s.route(ctx)

	deposits, err := target.ListDeposits(ctx, limit)
	if err == nil || !canFallback {
		return deposits, err
	}

	s.fallback("list deposits", err)

	return s.cache.ListDeposits(ctx, limit)
}

func (s *Store) ProviderEventSeen(ctx context.Context, eventID string) (bool, error) {
	target, canFallback := s.route(ctx)

	seen, err := target.ProviderEventSeen(ctx, eventID)
	if err == nil || !canFallback {
		return seen, err
	}

	s.fallback("check provider event", err)

	return s.cache.ProviderEventSeen(ctx, eventID)
}

func (s *Store) RecordProviderEvent(ctx context.Context, eventID string) error {
	target, canFallback := s.route(ctx)

	err := target.RecordProviderEvent(ctx, eventID)
	if err == nil || !canFallback {
		return err
	}

	s.fallback("record provider event", err)

	return s.cache.RecordProviderEvent(ctx, eventID)
}
