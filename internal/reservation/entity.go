package reservation

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

type DataSource string

const (
	DataSourceLive         DataSource = "live"
	DataSourceDemoFallback DataSource = "demo_fallback"
	DataSourceCache        DataSource = "cache"
)

type GuestDetails struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	ArrivalTime string `json:"arrival_time,omitempty"`
	Purpose     string `json:"purpose,omitempty"`

	PassportNumber string `json:"passport_number,omitempty"`
	Nationality    string `json:"nationality,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
}

type Dates struct {
	Checkin  string `json:"checkin"`
	Checkout string `json:"checkout"`
}

func (d Dates) CheckoutTime() (time.Time, error) {
	t, err := time.Parse(DateLayout, d.Checkout)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse checkout date %q: %w", d.Checkout, err)
	}

	return t, nil
}

type Steps struct {
	GuestDetailsComplete bool          `json:"guest_details_complete"`
	PassportComplete     bool          `json:"passport_complete"`
	TNCAccepted          bool          `json:"tnc_accepted"`
	DepositStatus        DepositStatus `json:"deposit_status"`
}

// Complete reports whether every sub-step is done and the deposit hold is in place.
func (s Steps) Complete() bool {
	return s.GuestDetailsComplete && s.PassportComplete && s.TNCAccepted && s.DepositStatus == DepositAuthorized
}

func (s Steps) started() bool {
	if s.GuestDetailsComplete || s.PassportComplete || s.TNCAccepted {
		return true
	}

	switch s.DepositStatus {
	case "", DepositPending, DepositUnknown:
		return false
	default:
		return true
	}
}

type Reservation struct {
	ID           string       `json:"reservation_id"`
	PropertyID   string       `json:"property_id"`
	DataSource   DataSource   `json:"data_source"`
	GuestDetails GuestDetails `json:"guest_details"`
	Dates        Dates        `json:"dates"`
	PMSStatus    PMSStatus    `json:"pms_status"`

	PreCheckinStarted  bool  `json:"pre_checkin_started"`
	PreCheckinComplete bool  `json:"pre_checkin_complete"`
	Steps              Steps `json:"steps"`

	PassportImageURL  string `json:"passport_image_url,omitempty"`
	SignatureImageURL string `json:"tnc_signature_image_url,omitempty"`
	TermsVersion      string `json:"tnc_version,omitempty"`
	DepositIntentID   string `json:"deposit_intent_id,omitempty"`

	AccessCode string `json:"access_code,omitempty"`
	WifiSSID   string `json:"wifi_ssid,omitempty"`
	WifiPass   string `json:"wifi_pass,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewReservation returns an empty record for id with every step outstanding.
func NewReservation(id string) Reservation {
	//nolint:exhaustruct
	return Reservation{
		ID:        id,
		PMSStatus: PMSStatusBooked,
		Steps: Steps{
			DepositStatus: DepositPending,
		},
	}
}

type Portal struct {
	ReservationID string `json:"reservation_id"`
	AccessCode    string `json:"access_code"`
	WifiSSID      string `json:"wifi_ssid"`
	WifiPass      string `json:"wifi_pass"`
}

type PassportFields struct {
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	PassportNumber string `json:"passport_number,omitempty"`
	Nationality    string `json:"nationality,omitempty"`
	DateOfBirth    string `json:"date_of_birth,omitempty"`
}

type Event struct {
	ID            string         `json:"id"`
	ReservationID string         `json:"reservation_id"`
	Message       string         `json:"message"`
	Meta          map[string]any `json:"meta,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type ReleaseStatus string

const (
	ReleaseNone      ReleaseStatus = "none"
	ReleaseScheduled ReleaseStatus = "scheduled"
	ReleaseReleased  ReleaseStatus = "released"
	ReleaseError     ReleaseStatus = "error"
)

type Deposit struct {
	ReservationID   string        `json:"reservation_id"`
	AttemptID       string        `json:"attempt_id"`
	Provider        string        `json:"provider"`
	AmountCents     int64         `json:"amount_cents"`
	Currency        string        `json:"currency"`
	Status          DepositStatus `json:"status"`
	ReleaseStatus   ReleaseStatus `json:"release_status"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	AuthorizedAt    *time.Time    `json:"authorized_at,omitempty"`
	ReleaseAt       *time.Time    `json:"release_at,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Active reports whether the deposit still holds guest funds.
func (d *Deposit) Active() bool {
	if d == nil || d.PaymentIntentID == "" {
		return false
	}

	return d.Status == DepositAuthorized || d.Status == DepositReleaseScheduled
}
