package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/pms"
	"github.com/avstrong/checkin/internal/reservation"
)

type storageReader interface {
	Get(ctx context.Context, id string) (*reservation.Reservation, error)
}

type storageWriter interface {
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	UpsertMerge(ctx context.Context, id string, patch reservation.Patch) (*reservation.Reservation, error)
	AppendEvent(ctx context.Context, id, message string, meta map[string]any) error
}

type storage interface {
	storageReader
	storageWriter
}

type gateway interface {
	GetReservation(ctx context.Context, id string) (*pms.Record, error)
	GetGuests(ctx context.Context, query string) ([]string, error)
	GetReservations(ctx context.Context, q pms.ReservationsQuery) ([]pms.Record, error)
	GetHotelDetails(ctx context.Context) (*pms.Hotel, error)
}

type DemoConfig struct {
	// Enabled lets fixed demo identities short-circuit the live PMS.
	Enabled bool
	// OutageFallback synthesizes a record when the PMS is unreachable for any criteria.
	OutageFallback bool
}

// Reconciler resolves reservations across the store, the demo identities and the PMS.
type Reconciler struct {
	l       *logger.Logger
	storage storage
	pms     gateway
	demo    DemoConfig
}

func New(l *logger.Logger, storage storage, pms gateway, demo DemoConfig) *Reconciler {
	return &Reconciler{
		l:       l,
		storage: storage,
		pms:     pms,
		demo:    demo,
	}
}

type Criteria struct {
	ID           string `json:"reservationId"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	CheckInDate  string `json:"checkInDate" validate:"omitempty,datetime=2006-01-02"`
	CheckOutDate string `json:"checkOutDate" validate:"omitempty,datetime=2006-01-02"`
}

func (c Criteria) normalized() Criteria {
	return Criteria{
		ID:           strings.TrimSpace(c.ID),
		FirstName:    strings.TrimSpace(c.FirstName),
		LastName:     strings.TrimSpace(c.LastName),
		CheckInDate:  strings.TrimSpace(c.CheckInDate),
		CheckOutDate: strings.TrimSpace(c.CheckOutDate),
	}
}

func (c Criteria) validate() error {
	if err := reservation.ValidateStruct(c); err != nil {
		return err
	}

	inputErr := reservation.NewInputError()

	if c.ID == "" && (c.FirstName == "" || c.LastName == "") {
		inputErr.AddError("reservationId", "provide reservationId or firstName and lastName")
	}

	return inputErr.OrNil()
}

// Resolve finds a reservation by id or guest name. The store answers first,
// then the demo identities, then the live PMS. Only a miss on every tier
// returns reservation.ErrNotFound.
func (r *Reconciler) Resolve(ctx context.Context, criteria Criteria) (*reservation.Reservation, error) {
	c := criteria.normalized()

	if err := c.validate(); err != nil {
		return nil, err
	}

	if c.ID != "" {
		res, err := r.storage.Get(ctx, c.ID)
		if err == nil {
			res.DataSource = reservation.DataSourceCache

			return res, nil
		}

		if !errors.Is(err, reservation.ErrRecordNotFound) {
			r.l.LogWarnf("Store lookup of reservation %v failed, trying next tier: %v", c.ID, err.Error())
		}
	}

	return r.resolveRemote(ctx, c)
}

// Refresh re-reads a known reservation from the PMS, skipping the store tier.
// Steps already completed locally are kept.
// PMS errors are returned as-is for staff to read.
func (r *Reconciler) Refresh(ctx context.Context, id string) (*reservation.Reservation, error) {
	c := Criteria{ID: strings.TrimSpace(id)} //nolint:exhaustruct

	if err := c.validate(); err != nil {
		return nil, err
	}

	if r.demo.Enabled && isDemo(c) {
		return r.saveSynthetic(ctx, demoRecord(c), "Demo reservation resolved")
	}

	rec, err := r.pms.GetReservation(ctx, c.ID)
	if errors.Is(err, pms.ErrNoData) {
		return nil, reservation.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("refresh reservation %v: %w", c.ID, err)
	}

	res, _, err := r.merge(ctx, *rec)
	if err != nil {
		return nil, fmt.Errorf("merge pms reservation %v: %w", rec.ID, err)
	}

	return res, nil
}

func (r *Reconciler) resolveRemote(ctx context.Context, c Criteria) (*reservation.Reservation, error) {
	if r.demo.Enabled && isDemo(c) {
		return r.saveSynthetic(ctx, demoRecord(c), "Demo reservation resolved")
	}

	rec, err := r.fetch(ctx, c)

	switch {
	case err == nil:
		res, _, err := r.merge(ctx, *rec)
		if err != nil {
			return nil, fmt.Errorf("merge pms reservation %v: %w", rec.ID, err)
		}

		return res, nil
	case errors.Is(err, reservation.ErrUnreachable), errors.Is(err, reservation.ErrUnauthorized):
		r.l.LogWarnf("PMS lookup failed for %+v: %v", c, err.Error())

		if r.demo.OutageFallback {
			return r.saveSynthetic(ctx, outageRecord(c), "Outage fallback reservation synthesized")
		}
	case errors.Is(err, pms.ErrNoData):
	default:
		r.l.LogErrorf("PMS lookup failed for %+v: %v", c, err.Error())
	}

	return nil, reservation.ErrNotFound
}

// fetch asks the PMS by id, or by guest name picking the most recent stay.
func (r *Reconciler) fetch(ctx context.Context, c Criteria) (*pms.Record, error) {
	if c.ID != "" {
		return r.pms.GetReservation(ctx, c.ID)
	}

	guests, err := r.pms.GetGuests(ctx, c.FirstName+" "+c.LastName)
	if err != nil {
		return nil, fmt.Errorf("search guests: %w", err)
	}

	if len(guests) == 0 {
		return nil, fmt.Errorf("guest %v %v: %w", c.FirstName, c.LastName, pms.ErrNoData)
	}

	stays, err := r.pms.GetReservations(ctx, pms.ReservationsQuery{ //nolint:exhaustruct
		GuestID: guests[0],
		Status:  pms.ArrivalStatuses,
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations of guest %v: %w", guests[0], err)
	}

	latest, ok := pms.Latest(stays, c.CheckInDate)
	if !ok {
		return nil, fmt.Errorf("reservations of guest %v: %w", guests[0], pms.ErrNoData)
	}

	return r.pms.GetReservation(ctx, latest.ID)
}

// merge writes PMS-sourced fields for rec. A new record starts with every step
// outstanding; an existing one keeps its steps and flags. touched reports
// whether anything PMS-sourced changed.
func (r *Reconciler) merge(ctx context.Context, rec pms.Record) (*reservation.Reservation, bool, error) {
	existing, err := r.storage.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, reservation.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("get reservation %v: %w", rec.ID, err)
	}

	patch := recordPatch(existing, rec, reservation.DataSourceLive)

	res, err := r.storage.UpsertMerge(ctx, rec.ID, patch)
	if err != nil {
		return nil, false, fmt.Errorf("upsert reservation %v: %w", rec.ID, err)
	}

	touched := existing == nil || pmsFieldsDiffer(existing, res)

	if touched {
		if err := r.storage.AppendEvent(ctx, rec.ID, "Synced from PMS", map[string]any{
			"created":    existing == nil,
			"pms_status": res.PMSStatus,
		}); err != nil {
			r.l.LogErrorf("Could not append sync event to reservation %v: %v", rec.ID, err.Error())
		}
	}

	return res, touched, nil
}

func (r *Reconciler) saveSynthetic(ctx context.Context, rec syntheticRecord, message string) (*reservation.Reservation, error) {
	existing, err := r.storage.Get(ctx, rec.ID)
	if err != nil && !errors.Is(err, reservation.ErrRecordNotFound) {
		r.l.LogWarnf("Store lookup of reservation %v failed before demo upsert: %v", rec.ID, err.Error())
	}

	patch := recordPatch(existing, rec.Record, reservation.DataSourceDemoFallback)
	patch.StartPreCheckin = false
	patch.AccessCode = reservation.Ptr(rec.AccessCode)
	patch.WifiSSID = reservation.Ptr(rec.WifiSSID)
	patch.WifiPass = reservation.Ptr(rec.WifiPass)

	res, err := r.storage.UpsertMerge(ctx, rec.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("upsert synthetic reservation %v: %w", rec.ID, err)
	}

	if existing == nil {
		if err := r.storage.AppendEvent(ctx, rec.ID, message, nil); err != nil {
			r.l.LogErrorf("Could not append event to reservation %v: %v", rec.ID, err.Error())
		}
	}

	return res, nil
}

// recordPatch limits a sync to PMS-sourced fields. Against an existing record
// blank vendor values leave the stored value alone.
func recordPatch(existing *reservation.Reservation, rec pms.Record, source reservation.DataSource) reservation.Patch {
	value := func(v string) *string {
		if existing != nil && v == "" {
			return nil
		}

		return reservation.Ptr(v)
	}

	var local reservation.PMSStatus
	if existing != nil {
		local = existing.PMSStatus
	}

	//nolint:exhaustruct
	return reservation.Patch{
		PropertyID: value(rec.PropertyID),
		DataSource: reservation.Ptr(source),
		GuestDetails: &reservation.GuestDetailsPatch{
			FirstName: value(rec.FirstName),
			LastName:  value(rec.LastName),
			Email:     value(rec.Email),
			Phone:     value(rec.Phone),
		},
		Dates: &reservation.DatesPatch{
			Checkin:  value(rec.Checkin),
			Checkout: value(rec.Checkout),
		},
		PMSStatus:       reservation.Ptr(reservation.MergePMSStatus(local, rec.Status)),
		StartPreCheckin: existing == nil,
	}
}

func pmsFieldsDiffer(before, after *reservation.Reservation) bool {
	return before.PropertyID != after.PropertyID ||
		before.DataSource != after.DataSource ||
		before.GuestDetails != after.GuestDetails ||
		before.Dates != after.Dates ||
		before.PMSStatus != after.PMSStatus
}

// CheckConnection calls the cheapest PMS endpoint and reports the outcome as
// a staff-facing message.
func (r *Reconciler) CheckConnection(ctx context.Context) (string, error) {
	hotel, err := r.pms.GetHotelDetails(ctx)
	if err != nil {
		return "", fmt.Errorf("pms connection check: %w", err)
	}

	return fmt.Sprintf("Connected to %v (%v)", hotel.PropertyName, hotel.PropertyID), nil
}
