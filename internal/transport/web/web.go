package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/avstrong/checkin/internal/deposit"
	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/reconcile"
	"github.com/avstrong/checkin/internal/reservation"
)

const defaultMaxBodyBytes = 8 << 20

type guestService interface {
	Get(ctx context.Context, id string) (*reservation.Reservation, error)
	UpdateSteps(ctx context.Context, id string, steps reservation.StepsPatch) (*reservation.Reservation, error)
	SaveGuestDetails(ctx context.Context, id string, in reservation.GuestDetailsInput) (*reservation.Reservation, error)
	SubmitPassport(ctx context.Context, id string, in reservation.PassportInput) (*reservation.PassportResult, error)
	AcceptTerms(ctx context.Context, id string, in reservation.TermsInput) (*reservation.Reservation, error)
	Portal(ctx context.Context, id string) (*reservation.Portal, error)
	ListArrivals(ctx context.Context, limit int) ([]*reservation.Reservation, error)
}

type resolver interface {
	Resolve(ctx context.Context, criteria reconcile.Criteria) (*reservation.Reservation, error)
	Refresh(ctx context.Context, id string) (*reservation.Reservation, error)
	SyncWindow(ctx context.Context, reference time.Time, offsets []int) (reconcile.Result, error)
	CheckConnection(ctx context.Context) (string, error)
}

type depositService interface {
	CreateHold(ctx context.Context, reservationID string, amountCents int64) (*deposit.Hold, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ReleaseHold(ctx context.Context, reservationID string) (*reservation.Deposit, error)
	List(ctx context.Context, limit int, status reservation.DepositStatus) ([]deposit.View, error)
}

type Server struct {
	srv      *http.Server
	router   *http.ServeMux
	l        *logger.Logger
	conf     Conf
	guests   guestService
	resolver resolver
	deposits depositService
}

type Conf struct {
	L                 *logger.Logger
	ServerLogger      *log.Logger
	Host              string
	Port              string
	ReadHeaderTimeout time.Duration
	LivenessEndpoint  string
	// StaffJWTSecret signs staff bearer tokens. Staff routes answer 503 when empty.
	StaffJWTSecret string
	MaxBodyBytes   int64
	Now            func() time.Time
}

func New(ctx context.Context, conf Conf, guests guestService, resolver resolver, deposits depositService) (*Server, error) {
	mux := http.NewServeMux()

	if conf.MaxBodyBytes <= 0 {
		conf.MaxBodyBytes = defaultMaxBodyBytes
	}

	if conf.Now == nil {
		conf.Now = func() time.Time { return time.Now().UTC() }
	}

	if conf.LivenessEndpoint == "" {
		conf.LivenessEndpoint = "/liveness"
	}

	//nolint:exhaustruct
	srv := &http.Server{
		Addr:              net.JoinHostPort(conf.Host, conf.Port),
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		ErrorLog:          conf.ServerLogger,
		Handler:           mux,
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	server := &Server{
		srv:      srv,
		router:   mux,
		l:        conf.L,
		conf:     conf,
		guests:   guests,
		resolver: resolver,
		deposits: deposits,
	}

	server.addRoutes(mux)

	return server, nil
}

func (s *Server) Srv() *http.Server {
	return s.srv
}

// Handler exposes the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}
