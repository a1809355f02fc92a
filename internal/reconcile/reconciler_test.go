package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/avstrong/checkin/internal/idgen"
	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/pms"
	"github.com/avstrong/checkin/internal/reservation"
	"github.com/avstrong/checkin/internal/storage/memory"
)

type fakePMS struct {
	getReservation  func(ctx context.Context, id string) (*pms.Record, error)
	getGuests       func(ctx context.Context, query string) ([]string, error)
	getReservations func(ctx context.Context, q pms.ReservationsQuery) ([]pms.Record, error)
}

func (f *fakePMS) GetReservation(ctx context.Context, id string) (*pms.Record, error) {
	if f.getReservation == nil {
		return nil, reservation.ErrUnreachable
	}

	return f.getReservation(ctx, id)
}

func (f *fakePMS) GetGuests(ctx context.Context, query string) ([]string, error) {
	if f.getGuests == nil {
		return nil, reservation.ErrUnreachable
	}

	return f.getGuests(ctx, query)
}

func (f *fakePMS) GetReservations(ctx context.Context, q pms.ReservationsQuery) ([]pms.Record, error) {
	if f.getReservations == nil {
		return nil, reservation.ErrUnreachable
	}

	return f.getReservations(ctx, q)
}

func (f *fakePMS) GetHotelDetails(context.Context) (*pms.Hotel, error) {
	return &pms.Hotel{PropertyID: "20205", PropertyName: "CoZzzee"}, nil
}

func newStore() *memory.DB {
	return memory.New(memory.Config{L: logger.Nop(), IDGenerator: idgen.New()})
}

func newReconciler(store *memory.DB, gw gateway, demo DemoConfig) *Reconciler {
	return New(logger.Nop(), store, gw, demo)
}

func liveRecord(id, checkin string) pms.Record {
	return pms.Record{
		ID:         id,
		PropertyID: "20205",
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Checkin:    checkin,
		Checkout:   "2025-11-28",
		Status:     reservation.PMSStatusBooked,
	}
}

func TestResolveDemoByName(t *testing.T) {
	store := newStore()
	r := newReconciler(store, &fakePMS{}, DemoConfig{Enabled: true})

	res, err := r.Resolve(context.Background(), Criteria{FirstName: "Yang", LastName: "Ding", CheckInDate: "2025-11-25"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if res.ID != "7320576071587" {
		t.Errorf("ID = %q, want 7320576071587", res.ID)
	}

	if res.PMSStatus != reservation.PMSStatusBooked {
		t.Errorf("PMSStatus = %q, want booked", res.PMSStatus)
	}

	if res.Steps.DepositStatus != reservation.DepositPending {
		t.Errorf("DepositStatus = %q, want pending", res.Steps.DepositStatus)
	}

	if res.DataSource != reservation.DataSourceDemoFallback {
		t.Errorf("DataSource = %q, want demo_fallback", res.DataSource)
	}

	if _, err := store.Get(context.Background(), "7320576071587"); err != nil {
		t.Errorf("demo record was not stored: %v", err)
	}
}

func TestResolveDemoIDWhilePMSUnreachable(t *testing.T) {
	var pmsCalls int

	gw := &fakePMS{
		getReservation: func(context.Context, string) (*pms.Record, error) {
			pmsCalls++

			return nil, reservation.ErrUnreachable
		},
	}

	r := newReconciler(newStore(), gw, DemoConfig{Enabled: true})

	res, err := r.Resolve(context.Background(), Criteria{ID: "12345"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if res.ID != "12345" || res.DataSource != reservation.DataSourceDemoFallback {
		t.Errorf("got %v/%v, want 12345/demo_fallback", res.ID, res.DataSource)
	}

	if res.AccessCode == "" || res.WifiSSID == "" {
		t.Error("demo record has no portal fields")
	}

	if pmsCalls != 0 {
		t.Errorf("PMS was called %d times for a demo id", pmsCalls)
	}
}

func TestResolveDemoDisabledGoesToPMS(t *testing.T) {
	r := newReconciler(newStore(), &fakePMS{}, DemoConfig{Enabled: false})

	if _, err := r.Resolve(context.Background(), Criteria{ID: "12345"}); !errors.Is(err, reservation.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveNotFound(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{name: "unreachable", err: reservation.ErrUnreachable},
		{name: "unauthorized", err: reservation.ErrUnauthorized},
		{name: "no data", err: pms.ErrNoData},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakePMS{
				getReservation: func(context.Context, string) (*pms.Record, error) { return nil, tc.err },
			}

			r := newReconciler(newStore(), gw, DemoConfig{Enabled: true})

			_, err := r.Resolve(context.Background(), Criteria{ID: "999"})
			if !errors.Is(err, reservation.ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}

			if err.Error() != "no booking found" {
				t.Errorf("message = %q", err.Error())
			}
		})
	}
}

func TestResolveOutageFallback(t *testing.T) {
	r := newReconciler(newStore(), &fakePMS{}, DemoConfig{Enabled: true, OutageFallback: true})

	res, err := r.Resolve(context.Background(), Criteria{FirstName: "Grace", LastName: "Hopper"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if res.ID != "mock_search_grace" {
		t.Errorf("ID = %q, want mock_search_grace", res.ID)
	}

	if res.DataSource != reservation.DataSourceDemoFallback {
		t.Errorf("DataSource = %q", res.DataSource)
	}
}

func TestResolveRejectsEmptyCriteria(t *testing.T) {
	r := newReconciler(newStore(), &fakePMS{}, DemoConfig{Enabled: true})

	_, err := r.Resolve(context.Background(), Criteria{FirstName: "OnlyFirst"})
	if reservation.IsInputError(err) == nil {
		t.Fatalf("err = %v, want InputError", err)
	}

	_, err = r.Resolve(context.Background(), Criteria{ID: "1", CheckInDate: "25/11/2025"})
	if reservation.IsInputError(err) == nil {
		t.Fatalf("err = %v, want InputError for bad date", err)
	}
}

func TestResolveLiveCreatesAndIsIdempotent(t *testing.T) {
	store := newStore()
	gw := &fakePMS{
		getReservation: func(_ context.Context, id string) (*pms.Record, error) {
			rec := liveRecord(id, "2025-11-25")

			return &rec, nil
		},
	}

	r := newReconciler(store, gw, DemoConfig{Enabled: true})
	ctx := context.Background()

	res, err := r.Resolve(ctx, Criteria{ID: "A100"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if res.DataSource != reservation.DataSourceLive || !res.PreCheckinStarted {
		t.Errorf("new live record: source=%v started=%v", res.DataSource, res.PreCheckinStarted)
	}

	if res.Steps.GuestDetailsComplete || res.Steps.DepositStatus != reservation.DepositPending {
		t.Errorf("new live record has steps %+v", res.Steps)
	}

	first := storedJSON(t, store, "A100")

	again, err := r.Resolve(ctx, Criteria{ID: "A100"})
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	if again.DataSource != reservation.DataSourceCache {
		t.Errorf("second resolve DataSource = %q, want cache", again.DataSource)
	}

	if second := storedJSON(t, store, "A100"); second != first {
		t.Errorf("stored record changed between resolves:\n%s\n%s", first, second)
	}
}

func TestResolveByNamePicksLatestStay(t *testing.T) {
	var fetched string

	gw := &fakePMS{
		getGuests: func(_ context.Context, query string) ([]string, error) {
			if query != "Ada Lovelace" {
				t.Errorf("query = %q", query)
			}

			return []string{"G1"}, nil
		},
		getReservations: func(_ context.Context, q pms.ReservationsQuery) ([]pms.Record, error) {
			if q.GuestID != "G1" {
				t.Errorf("GuestID = %q", q.GuestID)
			}

			return []pms.Record{liveRecord("OLD", "2024-01-01"), liveRecord("NEW", "2025-11-25")}, nil
		},
		getReservation: func(_ context.Context, id string) (*pms.Record, error) {
			fetched = id
			rec := liveRecord(id, "2025-11-25")

			return &rec, nil
		},
	}

	r := newReconciler(newStore(), gw, DemoConfig{Enabled: true})

	res, err := r.Resolve(context.Background(), Criteria{FirstName: "Ada", LastName: "Lovelace"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if fetched != "NEW" || res.ID != "NEW" {
		t.Errorf("fetched %q, resolved %q, want NEW", fetched, res.ID)
	}
}

func TestRefreshNeverRegressesSteps(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	_, err := store.UpsertMerge(ctx, "A100", reservation.Patch{
		Steps: &reservation.StepsPatch{
			GuestDetailsComplete: reservation.Ptr(true),
			PassportComplete:     reservation.Ptr(true),
		},
		PMSStatus: reservation.Ptr(reservation.PMSStatusPreCheckinInProgress),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw := &fakePMS{
		getReservation: func(_ context.Context, id string) (*pms.Record, error) {
			rec := liveRecord(id, "2025-11-25")
			rec.Phone = ""

			return &rec, nil
		},
	}

	r := newReconciler(store, gw, DemoConfig{Enabled: true})

	res, err := r.Refresh(ctx, "A100")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if !res.Steps.PassportComplete || !res.Steps.GuestDetailsComplete {
		t.Errorf("steps regressed: %+v", res.Steps)
	}

	if res.PMSStatus != reservation.PMSStatusPreCheckinInProgress {
		t.Errorf("PMSStatus = %q, booked must not overwrite local progress", res.PMSStatus)
	}

	if res.GuestDetails.FirstName != "Ada" {
		t.Errorf("FirstName = %q, want Ada", res.GuestDetails.FirstName)
	}
}

func TestRefreshSurfacesPMSError(t *testing.T) {
	r := newReconciler(newStore(), &fakePMS{}, DemoConfig{Enabled: true})

	if _, err := r.Refresh(context.Background(), "A100"); !errors.Is(err, reservation.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}

func TestCheckConnection(t *testing.T) {
	r := newReconciler(newStore(), &fakePMS{}, DemoConfig{})

	msg, err := r.CheckConnection(context.Background())
	if err != nil {
		t.Fatalf("CheckConnection: %v", err)
	}

	if msg != "Connected to CoZzzee (20205)" {
		t.Errorf("message = %q", msg)
	}
}

func storedJSON(t *testing.T, store *memory.DB, id string) string {
	t.Helper()

	res, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get %v: %v", id, err)
	}

	res.UpdatedAt = time.Time{}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	return string(b)
}
