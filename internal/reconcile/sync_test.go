package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avstrong/checkin/internal/pms"
	"github.com/avstrong/checkin/internal/reservation"
)

var syncReference = time.Date(2025, 11, 25, 9, 0, 0, 0, time.UTC)

func TestSyncWindowDeduplicatesAcrossDays(t *testing.T) {
	var queried []string

	gw := &fakePMS{
		getReservations: func(_ context.Context, q pms.ReservationsQuery) ([]pms.Record, error) {
			queried = append(queried, q.CheckInFrom)

			if q.Status != pms.ArrivalStatuses {
				t.Errorf("Status = %q", q.Status)
			}

			switch q.CheckInFrom {
			case "2025-11-25", "2025-11-26":
				return []pms.Record{liveRecord("R1", "2025-11-25")}, nil
			default:
				return nil, nil
			}
		},
	}

	store := newStore()
	r := newReconciler(store, gw, DemoConfig{})

	result, err := r.SyncWindow(context.Background(), syncReference, []int{-1, 0, 1})
	if err != nil {
		t.Fatalf("SyncWindow: %v", err)
	}

	if result.Count != 1 {
		t.Errorf("Count = %d, want 1", result.Count)
	}

	if result.RecordsTouched != 1 {
		t.Errorf("RecordsTouched = %d, want 1", result.RecordsTouched)
	}

	want := []string{"2025-11-24", "2025-11-25", "2025-11-26"}
	if len(queried) != len(want) {
		t.Fatalf("queried %v, want %v", queried, want)
	}

	for i := range want {
		if queried[i] != want[i] {
			t.Errorf("queried[%d] = %q, want %q", i, queried[i], want[i])
		}
	}

	if _, err := store.Get(context.Background(), "R1"); err != nil {
		t.Errorf("R1 not committed: %v", err)
	}
}

func TestSyncWindowNoArrivals(t *testing.T) {
	gw := &fakePMS{
		getReservations: func(context.Context, pms.ReservationsQuery) ([]pms.Record, error) { return nil, nil },
	}

	result, err := newReconciler(newStore(), gw, DemoConfig{}).SyncWindow(context.Background(), syncReference, nil)
	if err != nil {
		t.Fatalf("SyncWindow: %v", err)
	}

	if !result.NoArrivals || result.Count != 0 {
		t.Errorf("result = %+v, want NoArrivals", result)
	}
}

func TestSyncWindowIsAllOrNothing(t *testing.T) {
	gw := &fakePMS{
		getReservations: func(_ context.Context, q pms.ReservationsQuery) ([]pms.Record, error) {
			if q.CheckInFrom == "2025-11-26" {
				return nil, reservation.ErrUnreachable
			}

			return []pms.Record{liveRecord("R-"+q.CheckInFrom, q.CheckInFrom)}, nil
		},
	}

	store := newStore()

	_, err := newReconciler(store, gw, DemoConfig{}).SyncWindow(context.Background(), syncReference, nil)
	if !errors.Is(err, reservation.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}

	recent, err := store.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}

	if len(recent) != 0 {
		t.Errorf("%d records committed after a failed sync", len(recent))
	}
}

func TestSyncWindowAbandonedDoesNotCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	gw := &fakePMS{
		getReservations: func(_ context.Context, q pms.ReservationsQuery) ([]pms.Record, error) {
			if q.CheckInFrom == "2025-11-26" {
				cancel()
			}

			return []pms.Record{liveRecord("R-"+q.CheckInFrom, q.CheckInFrom)}, nil
		},
	}

	store := newStore()

	if _, err := newReconciler(store, gw, DemoConfig{}).SyncWindow(ctx, syncReference, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	if recent, _ := store.ListRecent(context.Background(), 0); len(recent) != 0 {
		t.Errorf("%d records committed after cancellation", len(recent))
	}
}

func TestSyncWindowPreservesCompletedSteps(t *testing.T) {
	store := newStore()
	ctx := context.Background()

	_, err := store.UpsertMerge(ctx, "R1", reservation.Patch{
		Steps: &reservation.StepsPatch{PassportComplete: reservation.Ptr(true)},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw := &fakePMS{
		getReservations: func(context.Context, pms.ReservationsQuery) ([]pms.Record, error) {
			return []pms.Record{liveRecord("R1", "2025-11-25")}, nil
		},
	}

	r := newReconciler(store, gw, DemoConfig{})

	for range 2 {
		if _, err := r.SyncWindow(ctx, syncReference, nil); err != nil {
			t.Fatalf("SyncWindow: %v", err)
		}
	}

	res, err := store.Get(ctx, "R1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !res.Steps.PassportComplete {
		t.Error("passport_complete regressed after sync")
	}

	if res.GuestDetails.Email != "ada@example.com" {
		t.Errorf("Email = %q", res.GuestDetails.Email)
	}
}

func TestSyncWindowSecondRunTouchesNothing(t *testing.T) {
	gw := &fakePMS{
		getReservations: func(context.Context, pms.ReservationsQuery) ([]pms.Record, error) {
			return []pms.Record{liveRecord("R1", "2025-11-25")}, nil
		},
	}

	r := newReconciler(newStore(), gw, DemoConfig{})
	ctx := context.Background()

	if _, err := r.SyncWindow(ctx, syncReference, []int{0}); err != nil {
		t.Fatalf("first SyncWindow: %v", err)
	}

	result, err := r.SyncWindow(ctx, syncReference, []int{0})
	if err != nil {
		t.Fatalf("second SyncWindow: %v", err)
	}

	if result.Count != 1 || result.RecordsTouched != 0 {
		t.Errorf("result = %+v, want count 1 and nothing touched", result)
	}
}
