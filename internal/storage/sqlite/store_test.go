package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/avstrong/checkin/internal/idgen"
	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	store, err := New(Config{
		L:           logger.Nop(),
		Path:        filepath.Join(t.TempDir(), "data", "checkin.db"),
		IDGenerator: idgen.New(),
		Now: func() time.Time {
			clock = clock.Add(time.Second)

			return clock
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	t.Cleanup(func() { store.Close() })

	return store
}

func TestStore_UpsertMerge(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if _, err := store.Get(ctx, "R1"); !errors.Is(err, reservation.ErrRecordNotFound) {
		t.Fatalf("Get(missing) err = %v", err)
	}

	created, err := store.UpsertMerge(ctx, "R1", reservation.Patch{
		GuestDetails: &reservation.GuestDetailsPatch{FirstName: reservation.Ptr("Ada")},
		AccessCode:   reservation.Ptr("8899#"),
	})
	if err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	if created.Steps.DepositStatus != reservation.DepositPending {
		t.Errorf("new record deposit_status = %q", created.Steps.DepositStatus)
	}

	merged, err := store.UpsertMerge(ctx, "R1", reservation.Patch{
		Dates: &reservation.DatesPatch{Checkin: reservation.Ptr("2025-03-02"), Checkout: reservation.Ptr("2025-03-04")},
		Steps: &reservation.StepsPatch{PassportComplete: reservation.Ptr(true)},
	})
	if err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	got, err := store.Get(ctx, "R1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.GuestDetails.FirstName != "Ada" || got.AccessCode != "8899#" || got.Dates.Checkout != "2025-03-04" {
		t.Errorf("stored reservation lost fields: %+v", got)
	}

	if !got.Steps.PassportComplete || !got.PreCheckinStarted {
		t.Errorf("steps = %+v, started %v", got.Steps, got.PreCheckinStarted)
	}

	if !got.CreatedAt.Equal(created.CreatedAt) || !got.UpdatedAt.Equal(merged.UpdatedAt) {
		t.Errorf("timestamps created %v updated %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestStore_Transactions(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	trxCtx, err := store.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	if _, err := store.BeginTransaction(trxCtx); !errors.Is(err, ErrNestedTransaction) {
		t.Errorf("nested begin err = %v, want ErrNestedTransaction", err)
	}

	if _, err := store.UpsertMerge(trxCtx, "R1", reservation.Patch{}); err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	if err := store.AppendEvent(trxCtx, "R1", "Synced from PMS", nil); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := store.RollbackTransaction(trxCtx); err != nil {
		t.Fatalf("RollbackTransaction: %v", err)
	}

	if _, err := store.Get(ctx, "R1"); !errors.Is(err, reservation.ErrRecordNotFound) {
		t.Errorf("rolled back reservation visible: %v", err)
	}

	trxCtx, err = store.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	if _, err := store.UpsertMerge(trxCtx, "R1", reservation.Patch{}); err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	if err := store.AppendEvent(trxCtx, "R1", "Synced from PMS", nil); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := store.CommitTransaction(trxCtx); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}

	if _, err := store.Get(ctx, "R1"); err != nil {
		t.Errorf("committed reservation missing: %v", err)
	}

	if events, err := store.ListEvents(ctx, "R1"); err != nil || len(events) != 1 {
		t.Errorf("events = %d, err %v", len(events), err)
	}

	if err := store.CommitTransaction(ctx); !errors.Is(err, ErrTransactionNotFoundInCtx) {
		t.Errorf("commit without transaction err = %v", err)
	}
}

func TestStore_Events(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if err := store.AppendEvent(ctx, "R1", "Synced from PMS", map[string]any{"status": "confirmed"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := store.AppendEvent(ctx, "R1", "Guest details saved", nil); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := store.ListEvents(ctx, "R1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	if events[0].Message != "Synced from PMS" || events[0].Meta["status"] != "confirmed" {
		t.Errorf("first event = %+v", events[0])
	}

	if events[1].Meta != nil || !events[1].CreatedAt.After(events[0].CreatedAt) {
		t.Errorf("second event = %+v", events[1])
	}

	if other, _ := store.ListEvents(ctx, "R2"); len(other) != 0 {
		t.Errorf("events leaked across reservations: %d", len(other))
	}
}

func TestStore_ListRecent(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for _, r := range []struct{ id, checkin string }{
		{"R1", "2025-03-01"},
		{"R2", "2025-03-03"},
		{"R3", "2025-03-02"},
	} {
		patch := reservation.Patch{Dates: &reservation.DatesPatch{Checkin: reservation.Ptr(r.checkin)}}
		if _, err := store.UpsertMerge(ctx, r.id, patch); err != nil {
			t.Fatalf("UpsertMerge %v: %v", r.id, err)
		}
	}

	all, err := store.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}

	if len(all) != 3 || all[0].ID != "R2" || all[1].ID != "R3" || all[2].ID != "R1" {
		t.Errorf("order = %v", ids(all))
	}

	limited, err := store.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}

	if len(limited) != 1 || limited[0].ID != "R2" {
		t.Errorf("limited = %v", ids(limited))
	}
}

func TestStore_Deposits(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	if _, err := store.GetDeposit(ctx, "R1"); !errors.Is(err, reservation.ErrRecordNotFound) {
		t.Fatalf("GetDeposit(missing) err = %v", err)
	}

	releaseAt := time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"R1", "R2"} {
		dep := &reservation.Deposit{
			ReservationID:   id,
			Provider:        "stripe",
			AmountCents:     3000,
			Currency:        "sgd",
			Status:          reservation.DepositAuthorized,
			PaymentIntentID: "pi_" + id,
			ReleaseAt:       &releaseAt,
		}
		if err := store.SaveDeposit(ctx, dep); err != nil {
			t.Fatalf("SaveDeposit %v: %v", id, err)
		}
	}

	dep, err := store.GetDeposit(ctx, "R1")
	if err != nil {
		t.Fatalf("GetDeposit: %v", err)
	}

	if dep.PaymentIntentID != "pi_R1" || dep.ReleaseAt == nil || !dep.ReleaseAt.Equal(releaseAt) {
		t.Errorf("deposit = %+v", dep)
	}

	dep.Status = reservation.DepositReleaseScheduled
	if err := store.SaveDeposit(ctx, dep); err != nil {
		t.Fatalf("SaveDeposit: %v", err)
	}

	deposits, err := store.ListDeposits(ctx, 0)
	if err != nil {
		t.Fatalf("ListDeposits: %v", err)
	}

	if len(deposits) != 2 || deposits[0].ReservationID != "R1" || deposits[0].Status != reservation.DepositReleaseScheduled {
		t.Errorf("deposits = %+v", deposits)
	}

	if !deposits[0].CreatedAt.Equal(dep.CreatedAt) {
		t.Errorf("created_at changed on update: %v", deposits[0].CreatedAt)
	}
}

func TestStore_ProviderEvents(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	for i := 0; i < 2; i++ {
		if err := store.RecordProviderEvent(ctx, "evt_1"); err != nil {
			t.Fatalf("RecordProviderEvent: %v", err)
		}
	}

	seen, err := store.ProviderEventSeen(ctx, "evt_1")
	if err != nil || !seen {
		t.Errorf("evt_1 seen = %v, err %v", seen, err)
	}

	if seen, _ := store.ProviderEventSeen(ctx, "evt_2"); seen {
		t.Error("unrecorded event reported as seen")
	}
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkin.db")

	first, err := New(Config{L: logger.Nop(), Path: path, IDGenerator: idgen.New()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := first.UpsertMerge(ctx, "R1", reservation.Patch{AccessCode: reservation.Ptr("8899#")}); err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := New(Config{L: logger.Nop(), Path: path, IDGenerator: idgen.New()})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	res, err := second.Get(ctx, "R1")
	if err != nil || res.AccessCode != "8899#" {
		t.Errorf("reopened record = %+v, err %v", res, err)
	}
}

func ids(list []*reservation.Reservation) []string {
	out := make([]string, 0, len(list))
	for _, res := range list {
		out = append(out, res.ID)
	}

	return out
}
