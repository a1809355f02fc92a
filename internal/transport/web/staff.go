package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avstrong/checkin/internal/deposit"
	"github.com/avstrong/checkin/internal/reservation"
)

type syncRequest struct {
	Date    string `json:"date"`
	Offsets []int  `json:"offsets"`
}

// syncHandler always answers with an envelope; staff read the raw failure message.
func (s *Server) syncHandler(w http.ResponseWriter, r *http.Request) {
	var in syncRequest

	if err := s.decodeBody(w, r, &in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()}) //nolint:exhaustruct

		return
	}

	reference := s.conf.Now()

	if in.Date != "" {
		parsed, err := time.Parse(reservation.DateLayout, strings.TrimSpace(in.Date))
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, envelope{Message: "date must be formatted as YYYY-MM-DD"}) //nolint:exhaustruct

			return
		}

		reference = parsed
	}

	result, err := s.resolver.SyncWindow(r.Context(), reference, in.Offsets)
	if err != nil {
		s.l.LogErrorf("Arrivals sync by %q failed: %v", staffSubjectFromContext(r.Context()), err.Error())
		s.writeJSON(w, http.StatusOK, envelope{Message: err.Error()}) //nolint:exhaustruct

		return
	}

	message := fmt.Sprintf("Synced %d reservations for %v", result.Count, strings.Join(result.Dates, ", "))
	if result.NoArrivals {
		message = fmt.Sprintf("No arrivals for %v", strings.Join(result.Dates, ", "))
	}

	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Count: result.Count, Data: result})
}

type staffResolveRequest struct {
	ReservationID string `json:"reservationId"`
}

func (s *Server) staffResolveHandler(w http.ResponseWriter, r *http.Request) {
	var in staffResolveRequest

	if err := s.decodeBody(w, r, &in); err != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Message: err.Error()}) //nolint:exhaustruct

		return
	}

	res, err := s.resolver.Refresh(r.Context(), in.ReservationID)
	if inputErr := reservation.IsInputError(err); inputErr != nil {
		s.writeJSON(w, http.StatusBadRequest, envelope{Message: "provide reservationId"}) //nolint:exhaustruct

		return
	}

	if err != nil {
		s.l.LogWarnf("Staff resolve of %q failed: %v", in.ReservationID, err.Error())
		s.writeJSON(w, http.StatusOK, envelope{Message: err.Error()}) //nolint:exhaustruct

		return
	}

	s.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: fmt.Sprintf("Reservation %v synced", res.ID),
		Count:   1,
		Data:    res,
	})
}

func (s *Server) pmsHealthHandler(w http.ResponseWriter, r *http.Request) {
	message, err := s.resolver.CheckConnection(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusOK, envelope{Message: err.Error()}) //nolint:exhaustruct

		return
	}

	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: message}) //nolint:exhaustruct
}

type listResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func limitParam(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}

	return limit
}

func (s *Server) arrivalsHandler(w http.ResponseWriter, r *http.Request) {
	arrivals, err := s.guests.ListArrivals(r.Context(), limitParam(r))
	if err != nil {
		s.writeError(w, "list arrivals", err)

		return
	}

	s.writeJSON(w, http.StatusOK, listResponse[*reservation.Reservation]{Data: arrivals, Count: len(arrivals)})
}

func (s *Server) depositsHandler(w http.ResponseWriter, r *http.Request) {
	var status reservation.DepositStatus

	if raw := r.URL.Query().Get("status"); raw != "" {
		status = reservation.ParseDepositStatus(raw)
		if !status.Valid() {
			inputErr := reservation.NewInputError()
			inputErr.AddError("status", fmt.Sprintf("unknown deposit status %q", raw))
			s.writeError(w, "list deposits", inputErr)

			return
		}
	}

	deposits, err := s.deposits.List(r.Context(), limitParam(r), status)
	if err != nil {
		s.writeError(w, "list deposits", err)

		return
	}

	s.writeJSON(w, http.StatusOK, listResponse[deposit.View]{Data: deposits, Count: len(deposits)})
}

func (s *Server) releaseDepositHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	dep, err := s.deposits.ReleaseHold(r.Context(), id)
	if err != nil {
		s.writeError(w, "release deposit", err)

		return
	}

	s.l.LogInfo("Deposit of %v released by %q", id, staffSubjectFromContext(r.Context()))
	s.writeJSON(w, http.StatusOK, dep)
}
