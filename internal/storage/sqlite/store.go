package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

// timeLayout keeps a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type Config struct {
	L           *logger.Logger
	Path        string
	IDGenerator idGenerator
	Now         func() time.Time
}

// Store keeps reservations and deposits as JSON documents in SQLite. It is
// the durable source of truth once populated.
type Store struct {
	db          *sql.DB
	l           *logger.Logger
	idGenerator idGenerator
	now         func() time.Time
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(conf Config) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(conf.Path), 0o755); err != nil { //nolint:gomnd
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", conf.Path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %v: %w", conf.Path, err)
	}

	// One connection serialises writers; SQLite would otherwise report "database is locked".
	db.SetMaxOpenConns(1)

	now := conf.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	l := conf.L
	if l == nil {
		l = logger.Nop()
	}

	store := &Store{
		db:          db,
		l:           l,
		idGenerator: conf.IDGenerator,
		now:         now,
	}

	if err := store.migrate(context.Background()); err != nil {
		db.Close()

		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return store, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			checkin TEXT NOT NULL DEFAULT '',
			doc TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS reservation_events (
			id TEXT PRIMARY KEY,
			reservation_id TEXT NOT NULL,
			message TEXT NOT NULL,
			meta TEXT,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS deposits (
			reservation_id TEXT PRIMARY KEY,
			doc TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS provider_events (
			event_id TEXT PRIMARY KEY,
			recorded_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_reservations_checkin ON reservations(checkin);
		CREATE INDEX IF NOT EXISTS idx_events_reservation ON reservation_events(reservation_id);
		CREATE INDEX IF NOT EXISTS idx_deposits_updated ON deposits(updated_at);
	`

	_, err := s.db.ExecContext(ctx, schema)

	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}

	return s.db
}

// BeginTransaction binds a SQL transaction to the returned context. Cancelling
// ctx rolls it back.
func (s *Store) BeginTransaction(ctx context.Context) (context.Context, error) {
	if _, ok := txFromContext(ctx); ok {
		return nil, ErrNestedTransaction
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin sqlite transaction: %w", err)
	}

	return withTx(ctx, tx), nil
}

func (s *Store) CommitTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite transaction: %w", err)
	}

	return nil
}

func (s *Store) RollbackTransaction(ctx context.Context) error {
	tx, ok := txFromContext(ctx)
	if !ok {
		return ErrTransactionNotFoundInCtx
	}

	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback sqlite transaction: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	return s.get(ctx, s.conn(ctx), id)
}

func (s *Store) get(ctx context.Context, q querier, id string) (*reservation.Reservation, error) {
	var doc string

	err := q.QueryRowContext(ctx, `SELECT doc FROM reservations WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reservation.ErrRecordNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("select reservation %v: %w", id, err)
	}

	var res reservation.Reservation
	if err := json.Unmarshal([]byte(doc), &res); err != nil {
		return nil, fmt.Errorf("decode reservation %v: %w", id, err)
	}

	return &res, nil
}

// UpsertMerge reads, merges and writes id. Outside of a caller transaction
// it runs in its own short transaction.
func (s *Store) UpsertMerge(ctx context.Context, id string, patch reservation.Patch) (_ *reservation.Reservation, err error) {
	txCtx := ctx

	if _, ok := txFromContext(ctx); !ok {
		txCtx, err = s.BeginTransaction(ctx)
		if err != nil {
			return nil, err
		}

		defer func() {
			if err != nil {
				if rbErr := s.RollbackTransaction(txCtx); rbErr != nil {
					s.l.LogErrorf("Could not rollback upsert of reservation %v: %v", id, rbErr.Error())
				}

				return
			}

			err = s.CommitTransaction(txCtx)
		}()
	}

	q := s.conn(txCtx)

	base, err := s.get(txCtx, q, id)
	if errors.Is(err, reservation.ErrRecordNotFound) {
		fresh := reservation.NewReservation(id)
		fresh.CreatedAt = s.now()
		base, err = &fresh, nil
	}

	if err != nil {
		return nil, err
	}

	next := reservation.Apply(*base, patch)
	next.UpdatedAt = s.now()

	doc, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("encode reservation %v: %w", id, err)
	}

	_, err = q.ExecContext(txCtx, `
		INSERT INTO reservations (id, checkin, doc, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET checkin = excluded.checkin, doc = excluded.doc, updated_at = excluded.updated_at
	`, id, next.Dates.Checkin, string(doc), next.UpdatedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("write reservation %v: %w", id, err)
	}

	return &next, nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]*reservation.Reservation, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT doc FROM reservations ORDER BY checkin DESC, id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var result []*reservation.Reservation

	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}

		var res reservation.Reservation
		if err := json.Unmarshal([]byte(doc), &res); err != nil {
			return nil, fmt.Errorf("decode reservation: %w", err)
		}

		result = append(result, &res)
	}

	return result, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, id, message string, meta map[string]any) error {
	eventID, err := s.idGenerator.GetID(ctx)
	if err != nil {
		return fmt.Errorf("get next event id: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode event meta: %w", err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO reservation_events (id, reservation_id, message, meta, created_at) VALUES (?, ?, ?, ?, ?)
	`, eventID, id, message, string(metaJSON), s.now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert event for reservation %v: %w", id, err)
	}

	return nil
}

func (s *Store) ListEvents(ctx context.Context, id string) ([]*reservation.Event, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT id, message, meta, created_at FROM reservation_events
		WHERE reservation_id = ? ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list events for reservation %v: %w", id, err)
	}
	defer rows.Close()

	var result []*reservation.Event

	for rows.Next() {
		var (
			event     reservation.Event
			meta      sql.NullString
			createdAt string
		)

		if err := rows.Scan(&event.ID, &event.Message, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		event.ReservationID = id

		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &event.Meta); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}

		if event.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parse event time: %w", err)
		}

		result = append(result, &event)
	}

	return result, rows.Err()
}

func (s *Store) GetDeposit(ctx context.Context, reservationID string) (*reservation.Deposit, error) {
	var doc string

	err := s.conn(ctx).QueryRowContext(ctx, `SELECT doc FROM deposits WHERE reservation_id = ?`, reservationID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reservation.ErrRecordNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("select deposit %v: %w", reservationID, err)
	}

	var dep reservation.Deposit
	if err := json.Unmarshal([]byte(doc), &dep); err != nil {
		return nil, fmt.Errorf("decode deposit %v: %w", reservationID, err)
	}

	return &dep, nil
}

func (s *Store) SaveDeposit(ctx context.Context, deposit *reservation.Deposit) error {
	dep := *deposit
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = s.now()
	}

	dep.UpdatedAt = s.now()

	doc, err := json.Marshal(dep)
	if err != nil {
		return fmt.Errorf("encode deposit %v: %w", dep.ReservationID, err)
	}

	_, err = s.conn(ctx).ExecContext(ctx, `
		INSERT INTO deposits (reservation_id, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(reservation_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`, dep.ReservationID, string(doc), dep.UpdatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("write deposit %v: %w", dep.ReservationID, err)
	}

	return nil
}

func (s *Store) ListDeposits(ctx context.Context, limit int) ([]*reservation.Deposit, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.conn(ctx).QueryContext(ctx, `
		SELECT doc FROM deposits ORDER BY updated_at DESC, reservation_id ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}
	defer rows.Close()

	var result []*reservation.Deposit

	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}

		var dep reservation.Deposit
		if err := json.Unmarshal([]byte(doc), &dep); err != nil {
			return nil, fmt.Errorf("decode deposit: %w", err)
		}

		result = append(result, &dep)
	}

	return result, rows.Err()
}

func (s *Store) ProviderEventSeen(ctx context.Context, eventID string) (bool, error) {
	var n int

	err := s.conn(ctx).QueryRowContext(ctx, `SELECT COUNT(1) FROM provider_events WHERE event_id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check provider event %v: %w", eventID, err)
	}

	return n > 0, nil
}

func (s *Store) RecordProviderEvent(ctx context.Context, eventID string) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT OR IGNORE INTO provider_events (event_id, recorded_at) VALUES (?, ?)
	`, eventID, s.now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record provider event %v: %w", eventID, err)
	}

	return nil
}
