package migration

import (
	"context"
	"fmt"

	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

type storage interface {
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}

type demoSeeder interface {
	SeedDemo(ctx context.Context) (*reservation.Reservation, error)
}

// Up seeds the demo reservation inside one transaction.
func Up(ctx context.Context, l *logger.Logger, storage storage, seeder demoSeeder) (err error) {
	ctx, err = storage.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after panic %v", p)
			}

			l.LogInfo("Migration transaction has been roll backed after panic")

			panic(p)
		}

		if err != nil {
			if rbErr := storage.RollbackTransaction(ctx); rbErr != nil {
				l.LogErrorf("Could not rollback migration transaction after error %v", rbErr.Error())
			}

			l.LogInfo("Migration transaction has been roll backed after error")

			return
		}

		if err = storage.CommitTransaction(ctx); err != nil {
			err = fmt.Errorf("commit migration: %w", err)

			return
		}

		l.LogInfo("Migration transaction has been committed")
	}()

	res, err := seeder.SeedDemo(ctx)
	if err != nil {
		return fmt.Errorf("seed demo reservation: %w", err)
	}

	l.LogInfo("Demo reservation %v is ready", res.ID)

	return nil
}
