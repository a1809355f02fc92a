package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reservation"
)

const (
	DefaultAmountCents  = 3000
	DefaultCurrency     = "sgd"
	DefaultReleaseAfter = 72 * time.Hour

	defaultListLimit = 100
)

type storage interface {
	Get(ctx context.Context, id string) (*reservation.Reservation, error)
	UpsertMerge(ctx context.Context, id string, patch reservation.Patch) (*reservation.Reservation, error)
	AppendEvent(ctx context.Context, id, message string, meta map[string]any) error

	GetDeposit(ctx context.Context, reservationID string) (*reservation.Deposit, error)
	SaveDeposit(ctx context.Context, deposit *reservation.Deposit) error
	ListDeposits(ctx context.Context, limit int) ([]*reservation.Deposit, error)
	ProviderEventSeen(ctx context.Context, eventID string) (bool, error)
	RecordProviderEvent(ctx context.Context, eventID string) error
}

type HoldRequest struct {
	ReservationID  string
	AmountCents    int64
	Currency       string
	Description    string
	IdempotencyKey string
}

type Intent struct {
	ID           string
	ClientSecret string
}

type provider interface {
	Name() string
	CreateHold(ctx context.Context, req HoldRequest) (*Intent, error)
	CancelHold(ctx context.Context, intentID string) error
}

type verifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}

type idGenerator interface {
	GetID(ctx context.Context) (string, error)
}

type Config struct {
	AmountCents  int64
	Currency     string
	ReleaseAfter time.Duration
	Now          func() time.Time
}

// Manager drives the deposit hold of a reservation from creation to release.
type Manager struct {
	l           *logger.Logger
	storage     storage
	provider    provider
	verifier    verifier
	idGenerator idGenerator

	amountCents  int64
	currency     string
	releaseAfter time.Duration
	now          func() time.Time
}

func New(l *logger.Logger, storage storage, provider provider, verifier verifier, idGen idGenerator, conf Config) *Manager {
	m := &Manager{
		l:            l,
		storage:      storage,
		provider:     provider,
		verifier:     verifier,
		idGenerator:  idGen,
		amountCents:  conf.AmountCents,
		currency:     strings.ToLower(conf.Currency),
		releaseAfter: conf.ReleaseAfter,
		now:          conf.Now,
	}

	if m.amountCents <= 0 {
		m.amountCents = DefaultAmountCents
	}

	if m.currency == "" {
		m.currency = DefaultCurrency
	}

	if m.releaseAfter <= 0 {
		m.releaseAfter = DefaultReleaseAfter
	}

	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}

	return m
}

type Hold struct {
	ReservationID   string `json:"reservation_id"`
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	AmountCents     int64  `json:"amount_cents"`
	Currency        string `json:"currency"`
	Amount          string `json:"amount"`
}

// CreateHold asks the provider for a manual-capture authorization. The
// reservation stays pending until the provider confirms it by webhook.
func (m *Manager) CreateHold(ctx context.Context, reservationID string, amountCents int64) (*Hold, error) {
	if reservationID == "" {
		inputErr := reservation.NewInputError()
		inputErr.AddError("reservation_id", "provide reservation_id")

		return nil, inputErr
	}

	if m.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	ctx = reservation.NewContextWithDurableWrites(ctx)

	if amountCents <= 0 {
		amountCents = m.amountCents
	}

	res, err := m.storage.Get(ctx, reservationID)
	if errors.Is(err, reservation.ErrRecordNotFound) {
		return nil, reservation.ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get reservation %v: %w", reservationID, err)
	}

	if cur := res.Steps.DepositStatus; cur != reservation.DepositPending && !cur.CanTransitionTo(reservation.DepositPending) {
		inputErr := reservation.NewInputError()
		inputErr.AddError("deposit", fmt.Sprintf("deposit is already %v", cur))

		return nil, inputErr
	}

	attemptID, err := m.idGenerator.GetID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get deposit attempt id: %w", err)
	}

	key, ok := reservation.IdempotencyKeyFromContext(ctx)
	if !ok {
		key = attemptID
	}

	intent, err := m.provider.CreateHold(ctx, HoldRequest{
		ReservationID:  reservationID,
		AmountCents:    amountCents,
		Currency:       m.currency,
		Description:    fmt.Sprintf("Security deposit for reservation %v", reservationID),
		IdempotencyKey: key,
	})
	if err != nil {
		m.appendEvent(ctx, reservationID, "Deposit intent failed", map[string]any{"error": err.Error()})

		return nil, fmt.Errorf("create hold for %v: %w: %w", reservationID, ErrProvider, err)
	}

	//nolint:exhaustruct
	dep := &reservation.Deposit{
		ReservationID:   reservationID,
		AttemptID:       attemptID,
		Provider:        m.provider.Name(),
		AmountCents:     amountCents,
		Currency:        m.currency,
		Status:          reservation.DepositPending,
		ReleaseStatus:   reservation.ReleaseNone,
		PaymentIntentID: intent.ID,
	}

	if err := m.storage.SaveDeposit(ctx, dep); err != nil {
		return nil, fmt.Errorf("save deposit of %v: %w", reservationID, err)
	}

	//nolint:exhaustruct
	patch := reservation.Patch{
		DepositIntentID: reservation.Ptr(intent.ID),
		Steps:           &reservation.StepsPatch{DepositStatus: reservation.Ptr(reservation.DepositPending)},
		StartPreCheckin: true,
	}

	if _, err := m.storage.UpsertMerge(ctx, reservationID, patch); err != nil {
		return nil, fmt.Errorf("mark deposit pending on %v: %w", reservationID, err)
	}

	m.appendEvent(ctx, reservationID, "Deposit intent created", map[string]any{
		"payment_intent_id": intent.ID,
		"attempt_id":        attemptID,
	})

	return &Hold{
		ReservationID:   reservationID,
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		AmountCents:     amountCents,
		Currency:        m.currency,
		Amount:          FormatAmount(amountCents, m.currency),
	}, nil
}

// HandleWebhook verifies a raw provider delivery and applies it. Nothing is
// read from an unverified payload.
func (m *Manager) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if m.verifier == nil {
		return ErrProviderNotConfigured
	}

	event, err := m.verifier.Verify(payload, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", reservation.ErrWebhookSignatureInvalid, err.Error())
	}

	return m.OnProviderEvent(ctx, *event)
}

// ReleaseHold cancels an active authorization. It is meant for an external
// scheduler once ReleaseAt has passed.
func (m *Manager) ReleaseHold(ctx context.Context, reservationID string) (*reservation.Deposit, error) {
	ctx = reservation.NewContextWithDurableWrites(ctx)

	dep, err := m.storage.GetDeposit(ctx, reservationID)
	if errors.Is(err, reservation.ErrRecordNotFound) {
		return nil, reservation.ErrNotAuthorized
	}

	if err != nil {
		return nil, fmt.Errorf("get deposit of %v: %w", reservationID, err)
	}

	if !dep.Active() {
		return nil, reservation.ErrNotAuthorized
	}

	if m.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	if dep.Status != reservation.DepositReleaseScheduled {
		dep.Status = reservation.DepositReleaseScheduled
		dep.ReleaseStatus = reservation.ReleaseScheduled

		if err := m.transition(ctx, dep, "Deposit release started", nil); err != nil {
			return nil, err
		}
	}

	if cancelErr := m.provider.CancelHold(ctx, dep.PaymentIntentID); cancelErr != nil {
		dep.Status = reservation.DepositError
		dep.ReleaseStatus = reservation.ReleaseError
		dep.LastError = cancelErr.Error()

		if err := m.transition(ctx, dep, "Deposit release failed", map[string]any{"error": cancelErr.Error()}); err != nil {
			m.l.LogErrorf("Could not record failed release of %v: %v", reservationID, err.Error())
		}

		return nil, fmt.Errorf("release hold of %v: %w: %w", reservationID, ErrProvider, cancelErr)
	}

	dep.Status = reservation.DepositReleased
	dep.ReleaseStatus = reservation.ReleaseReleased
	dep.LastError = ""

	if err := m.transition(ctx, dep, "Deposit released", nil); err != nil {
		return nil, err
	}

	return dep, nil
}

type ReleaseReport struct {
	Released []string          `json:"released"`
	Failed   map[string]string `json:"failed"`
}

// ReleaseDue releases every active hold whose release time is not after now.
func (m *Manager) ReleaseDue(ctx context.Context, now time.Time) (*ReleaseReport, error) {
	ctx = reservation.NewContextWithDurableWrites(ctx)

	deposits, err := m.storage.ListDeposits(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}

	report := &ReleaseReport{Released: []string{}, Failed: map[string]string{}}

	for _, dep := range deposits {
		if !dep.Active() || dep.ReleaseAt == nil || dep.ReleaseAt.After(now) {
			continue
		}

		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if _, err := m.ReleaseHold(ctx, dep.ReservationID); err != nil {
			m.l.LogErrorf("Could not release deposit of %v: %v", dep.ReservationID, err.Error())
			report.Failed[dep.ReservationID] = err.Error()

			continue
		}

		report.Released = append(report.Released, dep.ReservationID)
	}

	return report, nil
}

type View struct {
	*reservation.Deposit
	Amount string `json:"amount"`
}

// List returns the most recently updated deposits. A non-empty status keeps
// only deposits in that status.
func (m *Manager) List(ctx context.Context, limit int, status reservation.DepositStatus) ([]View, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	fetch := limit
	if status != "" {
		fetch = 0
	}

	deposits, err := m.storage.ListDeposits(ctx, fetch)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}

	views := make([]View, 0, len(deposits))

	for _, dep := range deposits {
		if status != "" && dep.Status != status {
			continue
		}

		views = append(views, View{Deposit: dep, Amount: FormatAmount(dep.AmountCents, dep.Currency)})

		if len(views) == limit {
			break
		}
	}

	return views, nil
}

// FormatAmount renders minor units as e.g. "30.00 SGD".
func FormatAmount(cents int64, currency string) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + strings.ToUpper(currency) //nolint:gomnd
}

// transition persists dep and mirrors its status onto the reservation steps.
func (m *Manager) transition(ctx context.Context, dep *reservation.Deposit, message string, meta map[string]any) error {
	if err := m.storage.SaveDeposit(ctx, dep); err != nil {
		return fmt.Errorf("save deposit of %v: %w", dep.ReservationID, err)
	}

	//nolint:exhaustruct
	patch := reservation.Patch{
		Steps: &reservation.StepsPatch{DepositStatus: reservation.Ptr(dep.Status)},
	}

	if dep.PaymentIntentID != "" {
		patch.DepositIntentID = reservation.Ptr(dep.PaymentIntentID)
	}

	if _, err := m.storage.UpsertMerge(ctx, dep.ReservationID, patch); err != nil {
		return fmt.Errorf("update deposit status of %v: %w", dep.ReservationID, err)
	}

	if meta == nil {
		meta = map[string]any{}
	}

	meta["payment_intent_id"] = dep.PaymentIntentID
	meta["status"] = dep.Status

	m.appendEvent(ctx, dep.ReservationID, message, meta)

	return nil
}

func (m *Manager) appendEvent(ctx context.Context, id, message string, meta map[string]any) {
	if err := m.storage.AppendEvent(ctx, id, message, meta); err != nil {
		m.l.LogErrorf("Could not append event %q to reservation %v: %v", message, id, err.Error())
	}
}
