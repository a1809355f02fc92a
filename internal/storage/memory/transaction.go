package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/avstrong/checkin/internal/reservation"
)

var (
	ErrTransactionIDNotFoundInCtx = errors.New("no memory transaction id found in ctx")
	ErrTransactionNotFound        = errors.New("memory transaction not found")
)

type contextKey string

const transactionKey contextKey = "memoryTransactionID"

func withTransactionID(ctx context.Context, trxID string) context.Context {
	return context.WithValue(ctx, transactionKey, trxID)
}

func transactionIDFromContext(ctx context.Context) (string, bool) {
	trxID, ok := ctx.Value(transactionKey).(string)

	return trxID, ok
}

// transaction stages reservation writes and events until commit. Deposits
// and provider events are written through.
type transaction struct {
	id                       string
	reservationModifications map[string]*reservation.Reservation
	eventModifications       []*reservation.Event
}

func (db *DB) BeginTransaction(ctx context.Context) (context.Context, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	trxID := fmt.Sprintf("trx-%d", db.nextTrxID)
	db.nextTrxID++

	db.transactions[trxID] = &transaction{
		id:                       trxID,
		reservationModifications: make(map[string]*reservation.Reservation),
	}

	return withTransactionID(ctx, trxID), nil
}

func (db *DB) CommitTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.activeTransaction(ctx)
	if err != nil {
		return err
	}

	for id, res := range trx.reservationModifications {
		db.reservations[id] = res
	}

	for _, event := range trx.eventModifications {
		db.events[event.ReservationID] = append(db.events[event.ReservationID], event)
	}

	delete(db.transactions, trx.id)

	return nil
}

func (db *DB) RollbackTransaction(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	trx, err := db.activeTransaction(ctx)
	if err != nil {
		return err
	}

	delete(db.transactions, trx.id)

	if db.l != nil {
		db.l.LogDebugf("Transaction %s discarded with %d staged reservations", trx.id, len(trx.reservationModifications))
	}

	return nil
}

// activeTransaction must be called with db.mu held.
func (db *DB) activeTransaction(ctx context.Context) (*transaction, error) {
	trxID, ok := transactionIDFromContext(ctx)
	if !ok || trxID == "" {
		return nil, ErrTransactionIDNotFoundInCtx
	}

	trx, exists := db.transactions[trxID]
	if !exists {
		return nil, fmt.Errorf("transaction %s not found: %w", trxID, ErrTransactionNotFound)
	}

	return trx, nil
}

// openTransaction returns the transaction bound to ctx, or nil outside of one.
func (db *DB) openTransaction(ctx context.Context) (*transaction, error) {
	if _, ok := transactionIDFromContext(ctx); !ok {
		return nil, nil //nolint:nilnil
	}

	return db.activeTransaction(ctx)
}
