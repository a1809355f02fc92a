package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/avstrong/checkin/internal/logger"
)

const defaultArrivalsLimit = 50

type storageReader interface {
	Get(ctx context.Context, id string) (*Reservation, error)
	ListRecent(ctx context.Context, limit int) ([]*Reservation, error)
}

type storageWriter interface {
	UpsertMerge(ctx context.Context, id string, patch Patch) (*Reservation, error)
	AppendEvent(ctx context.Context, id, message string, meta map[string]any) error
}

type storage interface {
	storageReader
	storageWriter
}

type passportReader interface {
	Extract(ctx context.Context, image []byte) (PassportFields, error)
}

// Manager runs the guest-facing pre-check-in steps. Every mutation goes
// through the store's UpsertMerge so the step invariant is re-derived on write.
type Manager struct {
	l            *logger.Logger
	storage      storage
	ocr          passportReader
	termsVersion string
}

func New(l *logger.Logger, storage storage, ocr passportReader, termsVersion string) *Manager {
	return &Manager{
		l:            l,
		storage:      storage,
		ocr:          ocr,
		termsVersion: termsVersion,
	}
}

type GuestDetailsInput struct {
	FirstName   string `json:"first_name" validate:"required,max=100"`
	LastName    string `json:"last_name" validate:"required,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	ArrivalTime string `json:"arrival_time" validate:"omitempty,max=32"`
	Purpose     string `json:"purpose" validate:"omitempty,max=200"`
}

type PassportInput struct {
	Image    []byte         `json:"image"`
	ImageURL string         `json:"image_url"`
	Manual   PassportFields `json:"manual"`
}

type PassportResult struct {
	Reservation *Reservation   `json:"reservation"`
	Extracted   bool           `json:"extracted"`
	Fields      PassportFields `json:"fields"`
}

type TermsInput struct {
	Accepted  bool   `json:"accepted" validate:"eq=true"`
	Signature string `json:"signature" validate:"required,min=10"`
	Version   string `json:"version"`
}

func (m *Manager) Get(ctx context.Context, id string) (*Reservation, error) {
	if id == "" {
		inputErr := NewInputError()
		inputErr.AddError("reservation_id", "provide reservation_id")

		return nil, inputErr
	}

	res, err := m.storage.Get(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get reservation %v: %w", id, err)
	}

	return res, nil
}

func (m *Manager) update(ctx context.Context, id string, patch Patch, message string, meta map[string]any) (*Reservation, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}

	res, err := m.storage.UpsertMerge(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("upsert reservation %v: %w", id, err)
	}

	if err = m.storage.AppendEvent(ctx, id, message, meta); err != nil {
		m.l.LogErrorf("Could not append event %q to reservation %v: %v", message, id, err.Error())
	}

	return res, nil
}

// UpdateSteps applies a guest step patch. The deposit status belongs to the
// payment lifecycle and is rejected here.
func (m *Manager) UpdateSteps(ctx context.Context, id string, steps StepsPatch) (*Reservation, error) {
	if steps.DepositStatus != nil {
		inputErr := NewInputError()
		inputErr.AddError("steps.deposit_status", "deposit status is set by payment events only")

		return nil, inputErr
	}

	return m.update(ctx, id, Patch{Steps: &steps, StartPreCheckin: true}, "Steps updated", map[string]any{
		"guest_details_complete": steps.GuestDetailsComplete,
		"passport_complete":      steps.PassportComplete,
		"tnc_accepted":           steps.TNCAccepted,
	})
}

func (m *Manager) SaveGuestDetails(ctx context.Context, id string, in GuestDetailsInput) (*Reservation, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}

	patch := Patch{
		GuestDetails: &GuestDetailsPatch{
			FirstName:   Ptr(in.FirstName),
			LastName:    Ptr(in.LastName),
			Email:       Ptr(in.Email),
			Phone:       Ptr(in.Phone),
			ArrivalTime: Ptr(in.ArrivalTime),
			Purpose:     Ptr(in.Purpose),
		},
		Steps: &StepsPatch{GuestDetailsComplete: Ptr(true)},
	}

	return m.update(ctx, id, patch, "Guest details saved", nil)
}

// SubmitPassport extracts passport fields from the image when OCR is
// available. OCR failure falls back to the manually entered fields.
func (m *Manager) SubmitPassport(ctx context.Context, id string, in PassportInput) (*PassportResult, error) {
	if len(in.Image) == 0 && in.ImageURL == "" && in.Manual.PassportNumber == "" {
		inputErr := NewInputError()
		inputErr.AddError("image", "provide a passport image or enter passport details")

		return nil, inputErr
	}

	var (
		extracted PassportFields
		ok        bool
	)

	if len(in.Image) > 0 && m.ocr != nil {
		fields, err := m.ocr.Extract(ctx, in.Image)
		if err != nil {
			m.l.LogWarnf("Passport OCR failed for reservation %v, falling back to manual entry: %v", id, err.Error())
		} else {
			extracted, ok = fields, true
		}
	}

	fields := PassportFields{
		FirstName:      firstNonEmpty(in.Manual.FirstName, extracted.FirstName),
		LastName:       firstNonEmpty(in.Manual.LastName, extracted.LastName),
		PassportNumber: firstNonEmpty(in.Manual.PassportNumber, extracted.PassportNumber),
		Nationality:    firstNonEmpty(in.Manual.Nationality, extracted.Nationality),
		DateOfBirth:    firstNonEmpty(in.Manual.DateOfBirth, extracted.DateOfBirth),
	}

	if fields.PassportNumber == "" {
		inputErr := NewInputError()
		inputErr.AddError("passport_number", "passport could not be read, enter details manually")

		return nil, inputErr
	}

	guest := &GuestDetailsPatch{
		PassportNumber: Ptr(fields.PassportNumber),
		Nationality:    nonEmpty(fields.Nationality),
		DateOfBirth:    nonEmpty(fields.DateOfBirth),
	}

	patch := Patch{
		GuestDetails:     guest,
		PassportImageURL: nonEmpty(in.ImageURL),
		Steps:            &StepsPatch{PassportComplete: Ptr(true)},
	}

	res, err := m.update(ctx, id, patch, "Passport submitted", map[string]any{"ocr": ok})
	if err != nil {
		return nil, err
	}

	return &PassportResult{Reservation: res, Extracted: ok, Fields: fields}, nil
}

func (m *Manager) AcceptTerms(ctx context.Context, id string, in TermsInput) (*Reservation, error) {
	if err := ValidateStruct(in); err != nil {
		return nil, err
	}

	version := firstNonEmpty(in.Version, m.termsVersion)

	patch := Patch{
		TermsVersion:      Ptr(version),
		SignatureImageURL: Ptr(in.Signature),
		Steps:             &StepsPatch{TNCAccepted: Ptr(true)},
	}

	return m.update(ctx, id, patch, "Terms accepted", map[string]any{"version": version})
}

// Portal reveals the door code and wifi credentials once pre-check-in is complete.
func (m *Manager) Portal(ctx context.Context, id string) (*Portal, error) {
	res, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !res.Steps.Complete() {
		return nil, ErrPortalLocked
	}

	return &Portal{
		ReservationID: res.ID,
		AccessCode:    res.AccessCode,
		WifiSSID:      res.WifiSSID,
		WifiPass:      res.WifiPass,
	}, nil
}

func (m *Manager) ListArrivals(ctx context.Context, limit int) ([]*Reservation, error) {
	if limit <= 0 || limit > defaultArrivalsLimit {
		limit = defaultArrivalsLimit
	}

	res, err := m.storage.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent reservations: %w", err)
	}

	return res, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}

	return &v
}
