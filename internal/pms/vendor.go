package pms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/avstrong/checkin/internal/reservation"
)

const (
	EndpointGetReservation  = "getReservation"
	EndpointGetReservations = "getReservations"
	EndpointGetGuests       = "getGuests"
	EndpointGetHotelDetails = "getHotelDetails"

	// ArrivalStatuses is the status filter used for every arrivals query.
	ArrivalStatuses = "confirmed,checked_in,not_confirmed"

	pageSize = 100
	maxPages = 20
)

// flexString accepts ids that the vendor sends either as JSON strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""

		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}

		*f = flexString(s)

		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode id %s: %w", b, err)
	}

	*f = flexString(n.String())

	return nil
}

type vendorReservation struct {
	ReservationID  flexString `json:"reservationID"`
	PropertyID     flexString `json:"propertyID"`
	GuestID        flexString `json:"guestID"`
	GuestFirstName string     `json:"guestFirstName"`
	FirstName      string     `json:"first_name"`
	GuestLastName  string     `json:"guestLastName"`
	LastName       string     `json:"last_name"`
	GuestEmail     string     `json:"guestEmail"`
	Email          string     `json:"email"`
	GuestPhone     string     `json:"guestPhone"`
	Phone          string     `json:"phone"`
	StartDate      string     `json:"startDate"`
	StartDateAlt   string     `json:"start_date"`
	EndDate        string     `json:"endDate"`
	EndDateAlt     string     `json:"end_date"`
	Status         string     `json:"status"`
}

type vendorGuest struct {
	GuestID        flexString `json:"guestID"`
	GuestFirstName string     `json:"guestFirstName"`
	GuestLastName  string     `json:"guestLastName"`
}

// Record is a PMS reservation mapped onto the canonical schema. Fields the
// vendor left out are empty strings.
type Record struct {
	ID         string
	PropertyID string
	GuestID    string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Checkin    string
	Checkout   string
	Status     reservation.PMSStatus
}

func (v vendorReservation) record() Record {
	return Record{
		ID:         strings.TrimSpace(string(v.ReservationID)),
		PropertyID: string(v.PropertyID),
		GuestID:    string(v.GuestID),
		FirstName:  first(v.GuestFirstName, v.FirstName),
		LastName:   first(v.GuestLastName, v.LastName),
		Email:      first(v.GuestEmail, v.Email),
		Phone:      first(v.GuestPhone, v.Phone),
		Checkin:    dateOnly(first(v.StartDate, v.StartDateAlt)),
		Checkout:   dateOnly(first(v.EndDate, v.EndDateAlt)),
		Status:     reservation.ParsePMSStatus(v.Status),
	}
}

type Hotel struct {
	PropertyID   string `json:"propertyID"`
	PropertyName string `json:"propertyName"`
	Timezone     string `json:"propertyTimezone"`
}

func (g *Gateway) GetReservation(ctx context.Context, id string) (*Record, error) {
	resp, err := g.Call(ctx, EndpointGetReservation, url.Values{"reservationID": {id}})
	if err != nil {
		return nil, err
	}

	if !resp.Success || isEmpty(resp.Data) {
		return nil, fmt.Errorf("reservation %v: %w", id, ErrNoData)
	}

	var v vendorReservation
	if err := json.Unmarshal(resp.Data, &v); err != nil {
		return nil, fmt.Errorf("decode reservation %v: %w", id, err)
	}

	rec := v.record()
	if rec.ID == "" {
		rec.ID = id
	}

	return &rec, nil
}

// GetGuests searches guests by free text. The first match is the vendor's best match.
func (g *Gateway) GetGuests(ctx context.Context, query string) ([]string, error) {
	resp, err := g.Call(ctx, EndpointGetGuests, url.Values{"query": {query}})
	if err != nil {
		return nil, err
	}

	if !resp.Success || isEmpty(resp.Data) {
		return nil, nil
	}

	var guests []vendorGuest
	if err := json.Unmarshal(resp.Data, &guests); err != nil {
		return nil, fmt.Errorf("decode guests: %w", err)
	}

	ids := make([]string, 0, len(guests))

	for _, guest := range guests {
		if guest.GuestID != "" {
			ids = append(ids, string(guest.GuestID))
		}
	}

	return ids, nil
}

type ReservationsQuery struct {
	CheckInFrom string
	CheckInTo   string
	Status      string
	GuestID     string
}

// GetReservations pages through the reservation list until the vendor runs out.
func (g *Gateway) GetReservations(ctx context.Context, q ReservationsQuery) ([]Record, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(pageSize))

	if q.CheckInFrom != "" {
		params.Set("checkInFrom", q.CheckInFrom)
	}

	if q.CheckInTo != "" {
		params.Set("checkInTo", q.CheckInTo)
	}

	if q.Status != "" {
		params.Set("status", q.Status)
	}

	if q.GuestID != "" {
		params.Set("guestID", q.GuestID)
	}

	var (
		records []Record
		fetched int
	)

	for page := 1; page <= maxPages; page++ {
		params.Set("pageNumber", strconv.Itoa(page))

		resp, err := g.Call(ctx, EndpointGetReservations, params)
		if err != nil {
			return nil, err
		}

		if !resp.Success || isEmpty(resp.Data) {
			break
		}

		var batch []vendorReservation
		if err := json.Unmarshal(resp.Data, &batch); err != nil {
			return nil, fmt.Errorf("decode reservations page %d: %w", page, err)
		}

		for _, v := range batch {
			if rec := v.record(); rec.ID != "" {
				records = append(records, rec)
			}
		}

		// count is the vendor's size of this page; older responses omit it.
		count := resp.Count
		if count <= 0 {
			count = len(batch)
		}

		fetched += count

		if count < pageSize || (resp.Total > 0 && fetched >= resp.Total) {
			break
		}
	}

	return records, nil
}

func (g *Gateway) GetHotelDetails(ctx context.Context) (*Hotel, error) {
	resp, err := g.Call(ctx, EndpointGetHotelDetails, nil)
	if err != nil {
		return nil, err
	}

	if !resp.Success || isEmpty(resp.Data) {
		return nil, fmt.Errorf("hotel details: %w: %v", ErrNoData, resp.Message)
	}

	var hotel Hotel
	if err := json.Unmarshal(resp.Data, &hotel); err != nil {
		return nil, fmt.Errorf("decode hotel details: %w", err)
	}

	return &hotel, nil
}

// Latest returns the record with the most recent check-in. When checkin is
// set, records starting that day win over later ones.
func Latest(records []Record, checkin string) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Checkin > sorted[j].Checkin
	})

	if checkin != "" {
		for _, rec := range sorted {
			if rec.Checkin == checkin {
				return rec, true
			}
		}
	}

	return sorted[0], true
}

func isEmpty(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)

	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("{}"))
}

func first(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}

// dateOnly cuts vendor timestamps down to a calendar date.
func dateOnly(raw string) string {
	if len(raw) >= len(reservation.DateLayout) {
		if t, err := time.Parse(reservation.DateLayout, raw[:len(reservation.DateLayout)]); err == nil {
			return t.Format(reservation.DateLayout)
		}
	}

	return raw
}
