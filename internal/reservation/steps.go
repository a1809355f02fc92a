package reservation

// Patch is a partial update of a reservation. Nil fields are left untouched.
type Patch struct {
	PropertyID   *string            `json:"property_id,omitempty"`
	DataSource   *DataSource        `json:"data_source,omitempty"`
	GuestDetails *GuestDetailsPatch `json:"guest_details,omitempty"`
	Dates        *DatesPatch        `json:"dates,omitempty"`
	PMSStatus    *PMSStatus         `json:"pms_status,omitempty"`
	Steps        *StepsPatch        `json:"steps,omitempty"`

	// StartPreCheckin marks pre-check-in as started even when no step has progressed yet.
	StartPreCheckin bool `json:"-"`

	PassportImageURL  *string `json:"passport_image_url,omitempty"`
	SignatureImageURL *string `json:"tnc_signature_image_url,omitempty"`
	TermsVersion      *string `json:"tnc_version,omitempty"`
	DepositIntentID   *string `json:"deposit_intent_id,omitempty"`

	AccessCode *string `json:"access_code,omitempty"`
	WifiSSID   *string `json:"wifi_ssid,omitempty"`
	WifiPass   *string `json:"wifi_pass,omitempty"`
}

type GuestDetailsPatch struct {
	FirstName      *string `json:"first_name,omitempty"`
	LastName       *string `json:"last_name,omitempty"`
	Email          *string `json:"email,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	ArrivalTime    *string `json:"arrival_time,omitempty"`
	Purpose        *string `json:"purpose,omitempty"`
	PassportNumber *string `json:"passport_number,omitempty"`
	Nationality    *string `json:"nationality,omitempty"`
	DateOfBirth    *string `json:"date_of_birth,omitempty"`
}

type DatesPatch struct {
	Checkin  *string `json:"checkin,omitempty"`
	Checkout *string `json:"checkout,omitempty"`
}

type StepsPatch struct {
	GuestDetailsComplete *bool          `json:"guest_details_complete,omitempty"`
	PassportComplete     *bool          `json:"passport_complete,omitempty"`
	TNCAccepted          *bool          `json:"tnc_accepted,omitempty"`
	DepositStatus        *DepositStatus `json:"deposit_status,omitempty"`
}

func Ptr[T any](v T) *T {
	return &v
}

// Apply merges patch into current and re-derives the pre-check-in flags.
// Step booleans are monotonic: a patch can set them, never clear them.
func Apply(current Reservation, patch Patch) Reservation {
	next := current

	set(&next.PropertyID, patch.PropertyID)
	set(&next.DataSource, patch.DataSource)
	set(&next.PMSStatus, patch.PMSStatus)
	set(&next.PassportImageURL, patch.PassportImageURL)
	set(&next.SignatureImageURL, patch.SignatureImageURL)
	set(&next.TermsVersion, patch.TermsVersion)
	set(&next.DepositIntentID, patch.DepositIntentID)
	set(&next.AccessCode, patch.AccessCode)
	set(&next.WifiSSID, patch.WifiSSID)
	set(&next.WifiPass, patch.WifiPass)

	if g := patch.GuestDetails; g != nil {
		set(&next.GuestDetails.FirstName, g.FirstName)
		set(&next.GuestDetails.LastName, g.LastName)
		set(&next.GuestDetails.Email, g.Email)
		set(&next.GuestDetails.Phone, g.Phone)
		set(&next.GuestDetails.ArrivalTime, g.ArrivalTime)
		set(&next.GuestDetails.Purpose, g.Purpose)
		set(&next.GuestDetails.PassportNumber, g.PassportNumber)
		set(&next.GuestDetails.Nationality, g.Nationality)
		set(&next.GuestDetails.DateOfBirth, g.DateOfBirth)
	}

	if d := patch.Dates; d != nil {
		set(&next.Dates.Checkin, d.Checkin)
		set(&next.Dates.Checkout, d.Checkout)
	}

	if s := patch.Steps; s != nil {
		next.Steps.GuestDetailsComplete = raise(next.Steps.GuestDetailsComplete, s.GuestDetailsComplete)
		next.Steps.PassportComplete = raise(next.Steps.PassportComplete, s.PassportComplete)
		next.Steps.TNCAccepted = raise(next.Steps.TNCAccepted, s.TNCAccepted)
		set(&next.Steps.DepositStatus, s.DepositStatus)
	}

	if next.Steps.DepositStatus == "" {
		next.Steps.DepositStatus = DepositPending
	}

	next.PreCheckinStarted = current.PreCheckinStarted || patch.StartPreCheckin || next.Steps.started()

	wasComplete := current.Steps.Complete()
	next.PreCheckinComplete = next.Steps.Complete()

	if next.PreCheckinComplete && !wasComplete {
		next.PMSStatus = PMSStatusPreCheckinComplete
	}

	return next
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func raise(current bool, v *bool) bool {
	if v == nil {
		return current
	}

	return current || *v
}
