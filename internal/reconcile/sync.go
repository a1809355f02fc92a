package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/avstrong/checkin/internal/pms"
	"github.com/avstrong/checkin/internal/reservation"
)

// DefaultWindow covers yesterday, today and tomorrow.
var DefaultWindow = []int{-1, 0, 1} //nolint:gochecknoglobals

type Result struct {
	Count          int      `json:"count"`
	RecordsTouched int      `json:"recordsTouched"`
	Dates          []string `json:"dates"`
	NoArrivals     bool     `json:"noArrivals"`
}

// SyncWindow pulls arrivals for every day in offsets around reference and
// merges them in one batch. Nothing is written unless every day was fetched
// and every merge succeeded. Callers must not run it concurrently.
func (r *Reconciler) SyncWindow(ctx context.Context, reference time.Time, offsets []int) (_ Result, err error) {
	if len(offsets) == 0 {
		offsets = DefaultWindow
	}

	result := Result{Dates: make([]string, 0, len(offsets))} //nolint:exhaustruct
	seen := make(map[string]struct{})

	var staged []pms.Record

	for _, offset := range offsets {
		day := reference.AddDate(0, 0, offset).Format(reservation.DateLayout)
		result.Dates = append(result.Dates, day)

		records, err := r.pms.GetReservations(ctx, pms.ReservationsQuery{ //nolint:exhaustruct
			CheckInFrom: day,
			CheckInTo:   day,
			Status:      pms.ArrivalStatuses,
		})
		if err != nil {
			return Result{}, fmt.Errorf("fetch arrivals for %v: %w", day, err)
		}

		for _, rec := range records {
			if _, dup := seen[rec.ID]; dup {
				continue
			}

			seen[rec.ID] = struct{}{}
			staged = append(staged, rec)
		}
	}

	if len(staged) == 0 {
		result.NoArrivals = true

		return result, nil
	}

	trxCtx, err := r.storage.BeginTransaction(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin sync transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := r.storage.RollbackTransaction(trxCtx); rbErr != nil {
				r.l.LogErrorf("Could not rollback sync transaction after panic %v", p)
			}

			panic(p)
		}

		if err != nil {
			if rbErr := r.storage.RollbackTransaction(trxCtx); rbErr != nil {
				r.l.LogErrorf("Could not rollback sync transaction after error %v", rbErr.Error())
			}

			r.l.LogInfo("Sync transaction has been rolled back after error: %v", err.Error())
		}
	}()

	for _, rec := range staged {
		_, touched, mergeErr := r.merge(trxCtx, rec)
		if mergeErr != nil {
			return Result{}, fmt.Errorf("stage reservation %v: %w", rec.ID, mergeErr)
		}

		if touched {
			result.RecordsTouched++
		}
	}

	// An abandoned run must not commit.
	if err = ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("sync abandoned before commit: %w", err)
	}

	if err = r.storage.CommitTransaction(trxCtx); err != nil {
		return Result{}, fmt.Errorf("commit sync: %w", err)
	}

	result.Count = len(staged)

	r.l.LogInfo("Synced %d arrivals over %v, %d records touched", result.Count, result.Dates, result.RecordsTouched)

	return result, nil
}
