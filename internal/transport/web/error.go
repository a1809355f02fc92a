package web

import (
	"errors"
	"net/http"

	"github.com/avstrong/checkin/internal/deposit"
	"github.com/avstrong/checkin/internal/reservation"
)

var (
	ErrPanic        = errors.New("panic recovered")
	ErrBadRequest   = errors.New("malformed request")
	ErrUnauthorized = errors.New("staff token rejected")
)

const genericGuestMessage = "Something went wrong. Please try again or contact reception."

// writeError maps domain errors to statuses. Guests never see raw messages.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	if inputErr := reservation.IsInputError(err); inputErr != nil {
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: inputErr.Fields()})

		return
	}

	var (
		status  int
		message string
	)

	switch {
	case errors.Is(err, ErrBadRequest):
		status, message = http.StatusBadRequest, http.StatusText(http.StatusBadRequest)
	case errors.Is(err, reservation.ErrNotFound):
		status, message = http.StatusNotFound, reservation.ErrNotFound.Error()
	case errors.Is(err, reservation.ErrWebhookSignatureInvalid):
		status, message = http.StatusBadRequest, reservation.ErrWebhookSignatureInvalid.Error()
	case errors.Is(err, reservation.ErrNotAuthorized):
		status, message = http.StatusConflict, reservation.ErrNotAuthorized.Error()
	case errors.Is(err, reservation.ErrPortalLocked):
		status, message = http.StatusForbidden, reservation.ErrPortalLocked.Error()
	case errors.Is(err, deposit.ErrProviderNotConfigured):
		status, message = http.StatusServiceUnavailable, "Deposits are not available right now."
	case errors.Is(err, deposit.ErrProvider):
		status, message = http.StatusBadGateway, "The payment provider could not process the deposit."
	default:
		status, message = http.StatusInternalServerError, genericGuestMessage
	}

	if status >= http.StatusInternalServerError {
		s.l.LogErrorf("Could not %v: %v", op, err.Error())
	} else {
		s.l.LogDebugf("Could not %v: %v", op, err.Error())
	}

	s.writeJSON(w, status, errorBody{Error: message}) //nolint:exhaustruct
}
