package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avstrong/checkin/internal/idgen"
	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

// tickingClock advances a minute on every call.
func tickingClock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	return func() time.Time {
		t = t.Add(time.Minute)

		return t
	}
}

func newDB() *DB {
	return New(Config{L: logger.Nop(), IDGenerator: idgen.New(), Now: tickingClock()})
}

func checkin(date string) reservation.Patch {
	return reservation.Patch{Dates: &reservation.DatesPatch{Checkin: reservation.Ptr(date)}}
}

func TestDB_TransactionCommit(t *testing.T) {
	ctx := context.Background()
	db := newDB()

	trxCtx, err := db.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	if _, err := db.UpsertMerge(trxCtx, "R1", checkin("2025-03-02")); err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	if err := db.AppendEvent(trxCtx, "R1", "Synced from PMS", map[string]any{"source": "pms"}); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if _, err := db.Get(trxCtx, "R1"); err != nil {
		t.Errorf("staged reservation not visible inside its transaction: %v", err)
	}

	if _, err := db.Get(ctx, "R1"); !errors.Is(err, reservation.ErrRecordNotFound) {
		t.Errorf("staged reservation visible outside its transaction: %v", err)
	}

	if err := db.CommitTransaction(trxCtx); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}

	res, err := db.Get(ctx, "R1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if res.Dates.Checkin != "2025-03-02" || res.CreatedAt.IsZero() {
		t.Errorf("committed reservation = %+v", res)
	}

	events, err := db.ListEvents(ctx, "R1")
	if err != nil || len(events) != 1 {
		t.Fatalf("events = %d, err %v", len(events), err)
	}

	if events[0].Meta["source"] != "pms" {
		t.Errorf("event meta = %v", events[0].Meta)
	}

	if err := db.CommitTransaction(trxCtx); !errors.Is(err, ErrTransactionNotFound) {
		t.Errorf("second commit err = %v, want ErrTransactionNotFound", err)
	}
}

func TestDB_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	db := newDB()

	trxCtx, err := db.BeginTransaction(ctx)
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}

	if _, err := db.UpsertMerge(trxCtx, "R1", checkin("2025-03-02")); err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	if err := db.AppendEvent(trxCtx, "R1", "Synced from PMS", nil); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if err := db.RollbackTransaction(trxCtx); err != nil {
		t.Fatalf("RollbackTransaction: %v", err)
	}

	if _, err := db.Get(ctx, "R1"); !errors.Is(err, reservation.ErrRecordNotFound) {
		t.Errorf("rolled back reservation visible: %v", err)
	}

	if events, _ := db.ListEvents(ctx, "R1"); len(events) != 0 {
		t.Errorf("rolled back events = %d", len(events))
	}

	if err := db.RollbackTransaction(ctx); !errors.Is(err, ErrTransactionIDNotFoundInCtx) {
		t.Errorf("rollback without transaction err = %v", err)
	}
}

func TestDB_UpsertMergeKeepsExistingFields(t *testing.T) {
	ctx := context.Background()
	db := newDB()

	if _, err := db.UpsertMerge(ctx, "R1", reservation.Patch{AccessCode: reservation.Ptr("8899#")}); err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	res, err := db.UpsertMerge(ctx, "R1", checkin("2025-03-02"))
	if err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	if res.AccessCode != "8899#" || res.Dates.Checkin != "2025-03-02" {
		t.Errorf("merged reservation = %+v", res)
	}

	if !res.UpdatedAt.After(res.CreatedAt) {
		t.Errorf("updated_at %v not after created_at %v", res.UpdatedAt, res.CreatedAt)
	}
}

func TestDB_PutReplacesRecord(t *testing.T) {
	ctx := context.Background()
	db := newDB()

	if _, err := db.UpsertMerge(ctx, "R1", reservation.Patch{AccessCode: reservation.Ptr("8899#")}); err != nil {
		t.Fatalf("UpsertMerge: %v", err)
	}

	replacement := reservation.NewReservation("R1")
	if err := db.Put(ctx, &replacement); err != nil {
		t.Fatalf("Put: %v", err)
	}

	res, err := db.Get(ctx, "R1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if res.AccessCode != "" {
		t.Errorf("access code = %q, want the replaced record", res.AccessCode)
	}
}

func TestDB_ListRecent(t *testing.T) {
	ctx := context.Background()
	db := newDB()

	for id, date := range map[string]string{
		"R1": "2025-03-01",
		"R2": "2025-03-03",
		"R3": "2025-03-02",
		"R4": "2025-03-03",
	} {
		if _, err := db.UpsertMerge(ctx, id, checkin(date)); err != nil {
			t.Fatalf("UpsertMerge %v: %v", id, err)
		}
	}

	all, err := db.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}

	want := []string{"R2", "R4", "R3", "R1"}
	if len(all) != len(want) {
		t.Fatalf("len = %d, want %d", len(all), len(want))
	}

	for i, id := range want {
		if all[i].ID != id {
			t.Errorf("position %d = %v, want %v", i, all[i].ID, id)
		}
	}

	limited, err := db.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}

	if len(limited) != 2 || limited[1].ID != "R4" {
		t.Errorf("limited = %d records", len(limited))
	}
}

func TestDB_Deposits(t *testing.T) {
	ctx := context.Background()
	db := newDB()

	if _, err := db.GetDeposit(ctx, "R1"); !errors.Is(err, reservation.ErrRecordNotFound) {
		t.Fatalf("GetDeposit(missing) err = %v", err)
	}

	for _, id := range []string{"R1", "R2"} {
		if err := db.SaveDeposit(ctx, &reservation.Deposit{ReservationID: id, Status: reservation.DepositPending}); err != nil {
			t.Fatalf("SaveDeposit %v: %v", id, err)
		}
	}

	first, err := db.GetDeposit(ctx, "R1")
	if err != nil {
		t.Fatalf("GetDeposit: %v", err)
	}

	first.Status = reservation.DepositAuthorized
	if err := db.SaveDeposit(ctx, first); err != nil {
		t.Fatalf("SaveDeposit: %v", err)
	}

	updated, err := db.GetDeposit(ctx, "R1")
	if err != nil {
		t.Fatalf("GetDeposit: %v", err)
	}

	if !updated.CreatedAt.Equal(first.CreatedAt) || !updated.UpdatedAt.After(first.CreatedAt) {
		t.Errorf("timestamps created %v updated %v", updated.CreatedAt, updated.UpdatedAt)
	}

	deposits, err := db.ListDeposits(ctx, 0)
	if err != nil {
		t.Fatalf("ListDeposits: %v", err)
	}

	if len(deposits) != 2 || deposits[0].ReservationID != "R1" {
		t.Errorf("deposits not ordered by last update: %+v", deposits)
	}
}

func TestDB_ProviderEvents(t *testing.T) {
	ctx := context.Background()
	db := newDB()

	seen, err := db.ProviderEventSeen(ctx, "evt_1")
	if err != nil || seen {
		t.Fatalf("seen = %v, err %v", seen, err)
	}

	for i := 0; i < 2; i++ {
		if err := db.RecordProviderEvent(ctx, "evt_1"); err != nil {
			t.Fatalf("RecordProviderEvent: %v", err)
		}
	}

	if seen, _ := db.ProviderEventSeen(ctx, "evt_1"); !seen {
		t.Error("recorded event not seen")
	}
}
