package reconcile

import (
	"context"
	"strings"

	"github.com/avstrong/checkin/internal/pms"
	"github.com/avstrong/checkin/internal/reservation"
)

const (
	DemoReservationID = "7320576071587"
	DemoShortID       = "12345"

	demoPropertyID = "prop_demo"
	demoCheckin    = "2025-11-25"
	demoCheckout   = "2025-11-26"
)

type syntheticRecord struct {
	pms.Record
	AccessCode string
	WifiSSID   string
	WifiPass   string
}

// isDemo matches the fixed demo identities: two reservation ids and the guest Yang Ding.
func isDemo(c Criteria) bool {
	if c.ID == DemoShortID || c.ID == DemoReservationID {
		return true
	}

	name := strings.ToLower(c.FirstName + " " + c.LastName)

	return strings.Contains(name, "yang") && strings.Contains(name, "ding")
}

// demoRecord is deterministic: the same criteria always produce the same record.
func demoRecord(c Criteria) syntheticRecord {
	return syntheticRecord{
		Record: pms.Record{ //nolint:exhaustruct
			ID:         orDefault(c.ID, DemoReservationID),
			PropertyID: demoPropertyID,
			FirstName:  orDefault(c.FirstName, "Yang"),
			LastName:   orDefault(c.LastName, "Ding"),
			Email:      "guest@example.com",
			Phone:      "+12345678",
			Checkin:    orDefault(c.CheckInDate, demoCheckin),
			Checkout:   demoCheckout,
			Status:     reservation.PMSStatusBooked,
		},
		AccessCode: "8899#",
		WifiSSID:   "CoZzzee_Guest",
		WifiPass:   "SleepTight",
	}
}

// outageRecord stands in for a reservation the PMS could not be asked about.
func outageRecord(c Criteria) syntheticRecord {
	rec := demoRecord(c)
	rec.ID = orDefault(c.ID, "mock_search_"+strings.ToLower(c.FirstName))
	rec.PropertyID = demoPropertyID
	rec.FirstName = c.FirstName
	rec.LastName = c.LastName
	rec.Email = ""
	rec.Phone = ""

	return rec
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}

	return v
}

// SeedDemo stores the canonical demo reservation under DemoShortID. Running it
// again leaves guest progress on the record untouched.
func (r *Reconciler) SeedDemo(ctx context.Context) (*reservation.Reservation, error) {
	return r.saveSynthetic(ctx, demoRecord(Criteria{ID: DemoShortID}), "Demo reservation seeded") //nolint:exhaustruct
}
