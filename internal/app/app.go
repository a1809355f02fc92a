package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"

	"github.com/avstrong/checkin/internal/config"
	"github.com/avstrong/checkin/internal/deposit"
	"github.com/avstrong/checkin/internal/idgen"
	"github.com/avstrong/checkin/internal/logger"
	"github.com/avstrong/checkin/internal/migration"
	"github.com/avstrong/checkin/internal/ocr"
	"github.com/avstrong/checkin/internal/payment"
	"github.com/avstrong/checkin/internal/pms"
	"github.com/avstrong/checkin/internal/reconcile"
	"github.com/avstrong/checkin/internal/reservation"
	"github.com/avstrong/checkin/internal/storage/layered"
	"github.com/avstrong/checkin/internal/storage/memory"
	"github.com/avstrong/checkin/internal/storage/sqlite"
	"github.com/avstrong/checkin/internal/transport/web"
)

type store interface {
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error

	Get(ctx context.Context, id string) (*reservation.Reservation, error)
	UpsertMerge(ctx context.Context, id string, patch reservation.Patch) (*reservation.Reservation, error)
	ListRecent(ctx context.Context, limit int) ([]*reservation.Reservation, error)
	AppendEvent(ctx context.Context, id, message string, meta map[string]any) error
	ListEvents(ctx context.Context, id string) ([]*reservation.Event, error)

	GetDeposit(ctx context.Context, reservationID string) (*reservation.Deposit, error)
	SaveDeposit(ctx context.Context, deposit *reservation.Deposit) error
	ListDeposits(ctx context.Context, limit int) ([]*reservation.Deposit, error)
	ProviderEventSeen(ctx context.Context, eventID string) (bool, error)
	RecordProviderEvent(ctx context.Context, eventID string) error
}

// Services is the wired object graph shared by the server and the one-shot commands.
type Services struct {
	Store        store
	Gateway      *pms.Gateway
	Reconciler   *reconcile.Reconciler
	Reservations *reservation.Manager
	Deposits     *deposit.Manager

	closers []func() error
}

func (s *Services) Close(l *logger.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			l.LogErrorf("Failed to release resource: %v", err.Error())
		}
	}
}

func Build(ctx context.Context, conf *config.Config, l *logger.Logger) (_ *Services, err error) {
	services := &Services{} //nolint:exhaustruct

	defer func() {
		if err != nil {
			services.Close(l)
		}
	}()

	idGen := idgen.New()

	switch conf.Store.Driver {
	case "memory":
		services.Store = memory.New(memory.Config{L: l.With("memory"), IDGenerator: idGen, Now: nil})
	default:
		primary, err := sqlite.New(sqlite.Config{L: l.With("sqlite"), Path: conf.Store.Path, IDGenerator: idGen, Now: nil})
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}

		services.closers = append(services.closers, primary.Close)

		if err := primary.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping sqlite store %v: %w", conf.Store.Path, err)
		}

		cache := memory.New(memory.Config{L: l.With("memory"), IDGenerator: idGen, Now: nil})
		services.Store = layered.New(l.With("store"), primary, cache)
	}

	//nolint:exhaustruct
	gatewayConf := pms.Config{
		L:          l.With("pms"),
		BaseURL:    conf.PMS.BaseURL,
		PropertyID: conf.PMS.PropertyID,
		APIKey:     conf.PMS.APIKey,
		Timeout:    conf.PMS.Timeout,
		Tracer:     otel.Tracer("github.com/avstrong/checkin/internal/pms"),
	}

	if conf.Redis.Addr != "" {
		//nolint:exhaustruct
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})

		services.closers = append(services.closers, client.Close)
		gatewayConf.Tokens = pms.NewRedisTokens(client, conf.Redis.TokenKey)
	}

	services.Gateway = pms.New(gatewayConf)
	services.Reconciler = reconcile.New(l.With("reconcile"), services.Store, services.Gateway, reconcile.DemoConfig{
		Enabled:        conf.Demo.Enabled,
		OutageFallback: conf.Demo.OutageFallback,
	})

	if conf.OCR.Endpoint != "" {
		//nolint:exhaustruct
		extractor := ocr.New(ocr.Config{Endpoint: conf.OCR.Endpoint, APIKey: conf.OCR.APIKey, Timeout: conf.OCR.Timeout})
		services.Reservations = reservation.New(l.With("reservation"), services.Store, extractor, conf.Terms.Version)
	} else {
		services.Reservations = reservation.New(l.With("reservation"), services.Store, nil, conf.Terms.Version)
	}

	depositConf := deposit.Config{
		AmountCents:  conf.Deposit.AmountCents,
		Currency:     conf.Deposit.Currency,
		ReleaseAfter: conf.Deposit.ReleaseAfter(),
		Now:          nil,
	}

	if conf.Payment.SecretKey != "" {
		//nolint:exhaustruct
		stripe, err := payment.NewStripe(payment.Config{
			SecretKey:     conf.Payment.SecretKey,
			WebhookSecret: conf.Payment.WebhookSecret,
		})
		if err != nil {
			return nil, fmt.Errorf("init payment provider: %w", err)
		}

		services.Deposits = deposit.New(l.With("deposit"), services.Store, stripe, stripe, idGen, depositConf)
	} else {
		l.LogWarnf("Payment secret key is not set, deposit holds are disabled")

		services.Deposits = deposit.New(l.With("deposit"), services.Store, nil, nil, idGen, depositConf)
	}

	if conf.Demo.Seed {
		if err := migration.Up(ctx, l.With("migration"), services.Store, services.Reconciler); err != nil {
			return nil, fmt.Errorf("up demo migration: %w", err)
		}
	}

	return services, nil
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down gracefully.
func Serve(ctx context.Context, conf *config.Config, l *logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := Build(ctx, conf, l)
	if err != nil {
		return err
	}
	defer services.Close(l)

	webConf := web.Conf{
		L:                 l.With("web"),
		ServerLogger:      l.With("http").StdLogger(),
		Host:              conf.HTTP.Host,
		Port:              conf.HTTP.Port,
		ReadHeaderTimeout: conf.HTTP.ReadHeaderTimeout,
		LivenessEndpoint:  conf.HTTP.LivenessEndpoint,
		StaffJWTSecret:    conf.Staff.JWTSecret,
		MaxBodyBytes:      0,
		Now:               nil,
	}

	srv, err := web.New(ctx, webConf, services.Reservations, services.Reconciler, services.Deposits)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	shutdownTimeout := conf.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 4 * time.Second //nolint:gomnd
	}

	stopped := make(chan struct{})

	//nolint:contextcheck
	go func() {
		defer close(stopped)

		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v:%v...", webConf.Host, webConf.Port)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())

		cancel()
		<-stopped

		return fmt.Errorf("listen: %w", err)
	}

	<-stopped

	l.LogInfo("Application stopped gracefully")

	return nil
}
