package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/diagnosis/evshare-bookings/internal/domain"
	"github.com/diagnosis/evshare-bookings/internal/handlers"
	"github.com/diagnosis/evshare-bookings/internal/jobs"
	"github.com/diagnosis/evshare-bookings/internal/overlay"
	"github.com/diagnosis/evshare-bookings/internal/remote"
	"github.com/diagnosis/evshare-bookings/internal/repository"
	"github.com/diagnosis/evshare-bookings/internal/service"
	"github.com/diagnosis/evshare-bookings/pkg/config"
	"github.com/diagnosis/evshare-bookings/pkg/database"
	"github.com/diagnosis/evshare-bookings/pkg/events"
	"github.com/diagnosis/evshare-bookings/pkg/logger"
	mw "github.com/diagnosis/evshare-bookings/pkg/middleware"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Could not read .env", "error", err)
	}
	logger.SetDefault(logger.New(os.Stdout, os.Getenv("LOG_LEVEL")))

	if err := run(); err != nil {
		logger.Error("Bookings service stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		return fmt.Errorf("BOOKING_TIMEZONE: %w", err)
	}
	domain.SetWireLocation(loc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := map[string]mw.Pinger{}

	backend, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()
	deps["backend"] = backend

	ov := overlay.New(cfg.Booking.OverlayTTL)

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.Enabled {
		bus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Warn("NATS unavailable, events will be dropped", "error", err)
		} else {
			publisher = bus
			deps["nats"] = bus
			if err := service.SubscribeInvalidations(bus, ov); err != nil {
				logger.Warn("Overlay invalidation disabled", "error", err)
			}
		}
	}
	defer publisher.Close()

	var commandGuards []func(http.Handler) http.Handler
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		if cfg.Redis.DB != 0 {
			opts.DB = cfg.Redis.DB
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		store := mw.NewRedisIdempotencyStore(rdb)
		deps["redis"] = store
		commandGuards = append(commandGuards,
			mw.RateLimit(mw.NewRedisRateCounter(rdb), mw.RateLimitConfig{
				Requests: cfg.Redis.RateLimitRequests,
				Window:   cfg.Redis.RateLimitWindow,
			}),
			mw.IdempotencyMiddleware(store, cfg.Redis.IdempotencyTTL),
		)
	}

	bookingService := service.NewBookingService(backend, publisher, ov, constraints(cfg.Booking.Rules))
	h := handlers.New(bookingService)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("bookings"))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Idempotent-Replay"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(mw.Health(deps))
	r.Use(mw.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Use(mw.RequireAuth(cfg.Auth.JWTSecret))
		r.Use(commandGuards...)
		h.Mount(r)
	})

	if cfg.Jobs.Enabled {
		sched, err := jobs.NewScheduler(cfg.Jobs.ExpirySweepSpec, bookingService, cfg.Backend.ServiceToken)
		if err != nil {
			return err
		}
		sched.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			sched.Stop(stopCtx)
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting bookings service", "port", cfg.Server.Port, "backend", cfg.Backend.Mode, "timezone", loc.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down bookings service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config) (service.Backend, func(), error) {
	switch cfg.Backend.Mode {
	case config.BackendRemote:
		logger.Info("Using remote booking backend", "url", cfg.Backend.URL)
		return remote.NewClient(cfg.Backend.URL, cfg.Backend.Timeout, cfg.Backend.ServiceToken), func() {}, nil
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := database.Connect(connectCtx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		if err := repository.Migrate(connectCtx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return repository.NewBookingRepository(pool, constraints(cfg.Booking.Rules)), pool.Close, nil
	}
}

func constraints(r config.RulesConfig) domain.Constraints {
	return domain.Constraints{
		MinAdvance:      r.MinAdvance,
		MaxAdvanceDays:  r.MaxAdvanceDays,
		MinGap:          r.MinGap,
		CheckInBefore:   r.CheckInBefore,
		CheckInAfter:    r.CheckInAfter,
		CheckOutAfter:   r.CheckOutAfter,
		AutoCancelGrace: r.AutoCancelGrace,
		Penalty: domain.PenaltySchedule{
			OvertimeBase:        r.PenaltyOvertimeBase,
			OvertimeRatePerHour: r.PenaltyOvertimeRate,
		},
	}
}
