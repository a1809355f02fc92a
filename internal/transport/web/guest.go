package web

import (
	"io"
	"net/http"

	"github.com/avstrong/checkin/internal/reconcile"
	"github.com/avstrong/checkin/internal/reservation"
)

// guestView hides the portal credentials until pre-check-in is complete.
func guestView(res *reservation.Reservation) *reservation.Reservation {
	if res == nil || res.PreCheckinComplete {
		return res
	}

	out := *res
	out.AccessCode, out.WifiSSID, out.WifiPass = "", "", ""

	return &out
}

func (s *Server) lookupHandler(w http.ResponseWriter, r *http.Request) {
	var criteria reconcile.Criteria

	if err := s.decodeBody(w, r, &criteria); err != nil {
		s.writeError(w, "decode lookup", err)

		return
	}

	res, err := s.resolver.Resolve(r.Context(), criteria)
	if err != nil {
		s.writeError(w, "resolve reservation", err)

		return
	}

	s.writeJSON(w, http.StatusOK, guestView(res))
}

func (s *Server) getReservationHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.guests.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, "get reservation", err)

		return
	}

	s.writeJSON(w, http.StatusOK, guestView(res))
}

func (s *Server) updateStepsHandler(w http.ResponseWriter, r *http.Request) {
	var steps reservation.StepsPatch

	if err := s.decodeBody(w, r, &steps); err != nil {
		s.writeError(w, "decode steps", err)

		return
	}

	res, err := s.guests.UpdateSteps(r.Context(), r.PathValue("id"), steps)
	if err != nil {
		s.writeError(w, "update steps", err)

		return
	}

	s.writeJSON(w, http.StatusOK, guestView(res))
}

func (s *Server) guestDetailsHandler(w http.ResponseWriter, r *http.Request) {
	var in reservation.GuestDetailsInput

	if err := s.decodeBody(w, r, &in); err != nil {
		s.writeError(w, "decode guest details", err)

		return
	}

	res, err := s.guests.SaveGuestDetails(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, "save guest details", err)

		return
	}

	s.writeJSON(w, http.StatusOK, guestView(res))
}

func (s *Server) passportHandler(w http.ResponseWriter, r *http.Request) {
	var in reservation.PassportInput

	if err := s.decodeBody(w, r, &in); err != nil {
		s.writeError(w, "decode passport", err)

		return
	}

	out, err := s.guests.SubmitPassport(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, "submit passport", err)

		return
	}

	out.Reservation = guestView(out.Reservation)

	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) termsHandler(w http.ResponseWriter, r *http.Request) {
	var in reservation.TermsInput

	if err := s.decodeBody(w, r, &in); err != nil {
		s.writeError(w, "decode terms", err)

		return
	}

	res, err := s.guests.AcceptTerms(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeError(w, "accept terms", err)

		return
	}

	s.writeJSON(w, http.StatusOK, guestView(res))
}

func (s *Server) portalHandler(w http.ResponseWriter, r *http.Request) {
	portal, err := s.guests.Portal(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, "open portal", err)

		return
	}

	s.writeJSON(w, http.StatusOK, portal)
}

type depositRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (s *Server) createDepositHandler(w http.ResponseWriter, r *http.Request) {
	var in depositRequest

	if err := s.decodeBody(w, r, &in); err != nil {
		s.writeError(w, "decode deposit", err)

		return
	}

	if in.AmountCents < 0 {
		inputErr := reservation.NewInputError()
		inputErr.AddError("amount_cents", "amount_cents must be positive")
		s.writeError(w, "create deposit", inputErr)

		return
	}

	hold, err := s.deposits.CreateHold(r.Context(), r.PathValue("id"), in.AmountCents)
	if err != nil {
		s.writeError(w, "create deposit", err)

		return
	}

	s.writeJSON(w, http.StatusCreated, hold)
}

// paymentWebhookHandler passes the raw body on untouched; the signature covers its exact bytes.
func (s *Server) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.conf.MaxBodyBytes))
	if err != nil {
		s.writeError(w, "read webhook", ErrBadRequest)

		return
	}

	if err := s.deposits.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		s.writeError(w, "handle payment webhook", err)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
