package deposit

import (
	"context"
	"errors"
	"fmt"

	"github.com/avstrong/checkin/internal/reservation"
)

type Outcome string

const (
	OutcomeAuthorized Outcome = "authorized"
	OutcomeFailed     Outcome = "failed"
	OutcomeCanceled   Outcome = "canceled"
	OutcomeIgnored    Outcome = "ignored"
)

// Event is a verified provider notification reduced to what the lifecycle needs.
type Event struct {
	ID             string
	Type           string
	Outcome        Outcome
	IntentID       string
	ReservationID  string
	FailureMessage string
}

func (o Outcome) status() (reservation.DepositStatus, string, bool) {
	switch o {
	case OutcomeAuthorized:
		return reservation.DepositAuthorized, "Deposit authorized", true
	case OutcomeFailed:
		return reservation.DepositFailed, "Deposit authorization failed", true
	case OutcomeCanceled:
		return reservation.DepositReleased, "Deposit authorization canceled", true
	default:
		return "", "", false
	}
}

// OnProviderEvent applies a provider event at most once. Redelivery by event
// id, a repeated outcome for the same intent and out-of-order events are all
// no-ops. The event id is recorded only after a durable write, so a failed
// apply is retried on redelivery.
func (m *Manager) OnProviderEvent(ctx context.Context, ev Event) error {
	ctx = reservation.NewContextWithDurableWrites(ctx)

	target, message, ok := ev.Outcome.status()
	if !ok {
		m.l.LogInfo("Ignoring payment event %v of type %v", ev.ID, ev.Type)

		return nil
	}

	if ev.ReservationID == "" {
		m.l.LogWarnf("Payment event %v for intent %v carries no reservationId, ignoring", ev.ID, ev.IntentID)

		return nil
	}

	if ev.ID != "" {
		seen, err := m.storage.ProviderEventSeen(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("check payment event %v: %w", ev.ID, err)
		}

		if seen {
			m.l.LogDebugf("Payment event %v already applied", ev.ID)

			return nil
		}
	}

	if err := m.apply(ctx, ev, target, message); err != nil {
		return err
	}

	if ev.ID != "" {
		if err := m.storage.RecordProviderEvent(ctx, ev.ID); err != nil {
			return fmt.Errorf("record payment event %v: %w", ev.ID, err)
		}
	}

	return nil
}

func (m *Manager) apply(ctx context.Context, ev Event, target reservation.DepositStatus, message string) error {
	res, err := m.storage.Get(ctx, ev.ReservationID)
	if errors.Is(err, reservation.ErrRecordNotFound) {
		m.l.LogWarnf("Payment event %v references unknown reservation %v, ignoring", ev.ID, ev.ReservationID)

		return nil
	}

	if err != nil {
		return fmt.Errorf("get reservation %v: %w", ev.ReservationID, err)
	}

	dep, err := m.storage.GetDeposit(ctx, ev.ReservationID)

	switch {
	case errors.Is(err, reservation.ErrRecordNotFound):
		//nolint:exhaustruct
		dep = &reservation.Deposit{
			ReservationID:   ev.ReservationID,
			Provider:        m.providerName(),
			AmountCents:     m.amountCents,
			Currency:        m.currency,
			Status:          res.Steps.DepositStatus,
			ReleaseStatus:   reservation.ReleaseNone,
			PaymentIntentID: ev.IntentID,
		}
	case err != nil:
		return fmt.Errorf("get deposit of %v: %w", ev.ReservationID, err)
	}

	if dep.PaymentIntentID != "" && ev.IntentID != "" && dep.PaymentIntentID != ev.IntentID {
		m.l.LogWarnf("Payment event %v is for superseded intent %v of reservation %v, ignoring", ev.ID, ev.IntentID, ev.ReservationID)

		return nil
	}

	if dep.Status == target {
		return nil
	}

	if !dep.Status.CanTransitionTo(target) {
		m.l.LogWarnf("Payment event %v cannot move deposit of %v from %v to %v, ignoring", ev.ID, ev.ReservationID, dep.Status, target)

		return nil
	}

	now := m.now()

	dep.Status = target
	dep.PaymentIntentID = firstNonEmpty(dep.PaymentIntentID, ev.IntentID)

	switch target {
	case reservation.DepositAuthorized:
		dep.AuthorizedAt = &now
		dep.LastError = ""
		dep.ReleaseStatus = reservation.ReleaseNone

		if checkout, err := res.Dates.CheckoutTime(); err == nil {
			releaseAt := checkout.Add(m.releaseAfter)
			dep.ReleaseAt = &releaseAt
			dep.ReleaseStatus = reservation.ReleaseScheduled
		} else {
			m.l.LogWarnf("Reservation %v has no usable checkout date, release must be triggered manually", ev.ReservationID)
		}
	case reservation.DepositFailed:
		dep.LastError = ev.FailureMessage
	case reservation.DepositReleased:
		dep.ReleaseStatus = reservation.ReleaseReleased
	}

	return m.transition(ctx, dep, message, map[string]any{"provider_event_id": ev.ID})
}

func (m *Manager) providerName() string {
	if m.provider == nil {
		return ""
	}

	return m.provider.Name()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
