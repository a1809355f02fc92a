package web

import (
	"fmt"
	"net/http"
)

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addRoutes(r *http.ServeMux) {
	guest := func(h http.HandlerFunc) http.Handler {
		return s.applyMiddlewares(h, s.idempotencyMiddleware(), s.loggerMiddleware(), s.recoverMiddleware())
	}

	staff := func(h http.HandlerFunc) http.Handler {
		return s.applyMiddlewares(h, s.staffMiddleware(), s.loggerMiddleware(), s.recoverMiddleware())
	}

	r.Handle("POST /api/reservations/v1/lookup", guest(s.lookupHandler))
	r.Handle("GET /api/reservations/v1/{id}", guest(s.getReservationHandler))
	r.Handle("PATCH /api/reservations/v1/{id}/steps", guest(s.updateStepsHandler))
	r.Handle("POST /api/reservations/v1/{id}/guest-details", guest(s.guestDetailsHandler))
	r.Handle("POST /api/reservations/v1/{id}/passport", guest(s.passportHandler))
	r.Handle("POST /api/reservations/v1/{id}/terms", guest(s.termsHandler))
	r.Handle("GET /api/reservations/v1/{id}/portal", guest(s.portalHandler))
	r.Handle("POST /api/reservations/v1/{id}/deposit", guest(s.createDepositHandler))

	r.Handle("POST /api/webhooks/v1/payments", guest(s.paymentWebhookHandler))

	r.Handle("POST /api/staff/v1/sync", staff(s.syncHandler))
	r.Handle("POST /api/staff/v1/resolve", staff(s.staffResolveHandler))
	r.Handle("GET /api/staff/v1/arrivals", staff(s.arrivalsHandler))
	r.Handle("GET /api/staff/v1/deposits", staff(s.depositsHandler))
	r.Handle("POST /api/staff/v1/deposits/{id}/release", staff(s.releaseDepositHandler))
	r.Handle("GET /api/staff/v1/pms/health", staff(s.pmsHealthHandler))

	r.Handle(
		fmt.Sprintf("GET %s", s.conf.LivenessEndpoint),
		s.applyMiddlewares(http.HandlerFunc(s.livenessHandler), s.recoverMiddleware()),
	)
}
