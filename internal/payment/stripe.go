package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/avstrong/checkin/internal/deposit"
)

const (
	ProviderStripe = "stripe"

	metadataReservationID = "reservationId"
)

var (
	ErrSecretKeyMissing     = errors.New("stripe secret key missing")
	ErrWebhookSecretMissing = errors.New("stripe webhook secret missing")
)

type Config struct {
	SecretKey     string
	WebhookSecret string
	// Backends overrides the API endpoint. Tests point it at a local server.
	Backends *stripe.Backends
}

// Stripe places and cancels manual-capture holds and verifies webhooks.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(conf Config) (*Stripe, error) {
	if conf.SecretKey == "" {
		return nil, ErrSecretKeyMissing
	}

	if conf.WebhookSecret == "" {
		return nil, ErrWebhookSecretMissing
	}

	return &Stripe{
		api:           client.New(conf.SecretKey, conf.Backends),
		webhookSecret: conf.WebhookSecret,
	}, nil
}

func (s *Stripe) Name() string {
	return ProviderStripe
}

func (s *Stripe) CreateHold(ctx context.Context, req deposit.HoldRequest) (*deposit.Intent, error) {
	//nolint:exhaustruct
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Description:   stripe.String(req.Description),
	}
	params.Context = ctx
	params.AddMetadata(metadataReservationID, req.ReservationID)

	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &deposit.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (s *Stripe) CancelHold(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{} //nolint:exhaustruct
	params.Context = ctx

	if _, err := s.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("cancel payment intent %v: %w", intentID, err)
	}

	return nil
}

type intentObject struct {
	ID               string            `json:"id"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Verify checks the Stripe-Signature header against the raw payload and maps
// the event type onto a deposit outcome.
func (s *Stripe) Verify(payload []byte, signature string) (*deposit.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verify stripe webhook: %w", err)
	}

	out := &deposit.Event{ //nolint:exhaustruct
		ID:      event.ID,
		Type:    string(event.Type),
		Outcome: outcome(string(event.Type)),
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}

	var intent intentObject
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("decode event object: %w", err)
	}

	out.IntentID = intent.ID
	out.ReservationID = intent.Metadata[metadataReservationID]

	if intent.LastPaymentError != nil {
		out.FailureMessage = intent.LastPaymentError.Message
	}

	return out, nil
}

// outcome maps Stripe event types. A manual-capture hold reports success as
// amount_capturable_updated; succeeded only arrives after a capture.
func outcome(eventType string) deposit.Outcome {
	switch eventType {
	case "payment_intent.amount_capturable_updated", "payment_intent.succeeded":
		return deposit.OutcomeAuthorized
	case "payment_intent.payment_failed":
		return deposit.OutcomeFailed
	case "payment_intent.canceled":
		return deposit.OutcomeCanceled
	default:
		return deposit.OutcomeIgnored
	}
}
