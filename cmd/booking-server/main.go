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

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clinicbook/clinicbook/internal/config"
	"github.com/clinicbook/clinicbook/internal/domain/availability"
	"github.com/clinicbook/clinicbook/internal/domain/calendarsync"
	"github.com/clinicbook/clinicbook/internal/platform/auth"
	"github.com/clinicbook/clinicbook/internal/platform/db"
	"github.com/clinicbook/clinicbook/internal/platform/gcal"
	"github.com/clinicbook/clinicbook/internal/platform/middleware"
	"github.com/clinicbook/clinicbook/internal/platform/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:   "booking-server",
		Short: "Clinic booking backend with external calendar reconciliation",
	}
	root.AddCommand(serveCmd(), syncCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "booking-server").Logger()
	if cfg.IsDev() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		logger = logger.Level(zerolog.DebugLevel)
	}
	log.Logger = logger
	return logger
}

// app holds everything the commands share. Built once per invocation.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	pool      *pgxpool.Pool
	metrics   *telemetry.Provider
	worker    *calendarsync.Worker
	scheduler *calendarsync.Scheduler
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := setupLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewProvider("booking-server")
	fetcher := gcal.NewClient(cfg.GoogleClientID, cfg.GoogleClientSecret, loc, cfg.FetchTimeout(), logger)

	credRepo := calendarsync.NewCredentialRepoPG(pool)
	availRepo := calendarsync.NewAvailabilityRepoPG(pool)
	resRepo := calendarsync.NewReservationRepoPG(pool)

	worker, err := calendarsync.NewWorker(calendarsync.WorkerConfig{
		Fetcher:      fetcher,
		Credentials:  credRepo,
		Availability: availRepo,
		Reservations: resRepo,
		Notifier:     calendarsync.LogNotifier{Logger: logger},
		Metrics:      metrics,
		Logger:       logger,
		Location:     loc,
		SlotMinutes:  cfg.SlotMinutes,
		WindowDays:   cfg.SyncWindowDays,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	scheduler, err := calendarsync.NewScheduler(calendarsync.SchedulerConfig{
		Syncer:      worker,
		Credentials: credRepo,
		Metrics:     metrics,
		Logger:      logger,
		Interval:    cfg.SyncInterval(),
		Cooldown:    cfg.SyncCooldown(),
		Concurrency: cfg.SyncConcurrency,
		BatchPause:  cfg.SyncBatchPause(),
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		metrics:   metrics,
		worker:    worker,
		scheduler: scheduler,
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			if err := db.Migrate(ctx, a.pool); err != nil {
				return err
			}

			go a.scheduler.Start(ctx)

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recovery(a.logger))
			e.Use(middleware.RequestID())
			e.Use(middleware.Logger(a.logger))
			e.Use(a.metrics.Middleware())
			e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: a.cfg.CORSOrigins}))

			e.GET("/health", db.HealthHandler(a.pool))
			e.GET("/metrics", a.metrics.PrometheusHandler())

			api := e.Group("/api/v1")
			availability.NewHandler(availability.NewService(
				availability.NewRepoPG(a.pool),
				calendarsync.NewReservationRepoPG(a.pool),
				a.logger,
			)).RegisterRoutes(api)

			operator := e.Group("/api/v1")
			if a.cfg.IsDev() {
				operator.Use(auth.DevAuth())
			} else {
				operator.Use(auth.OperatorJWT([]byte(a.cfg.OperatorJWTSecret)))
			}
			operator.Use(auth.RequireRole("admin", "operator"))
			calendarsync.NewHandler(a.scheduler).RegisterRoutes(operator)

			errCh := make(chan error, 1)
			go func() {
				errCh <- e.Start(":" + a.cfg.Port)
			}()
			a.logger.Info().Str("port", a.cfg.Port).Msg("booking server started")

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := e.Shutdown(shutdownCtx); err != nil {
				a.logger.Error().Err(err).Msg("server shutdown")
			}
			a.logger.Info().Msg("booking server stopped")
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	var clinician string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation cycle for one clinician and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			clinicianID, err := uuid.Parse(clinician)
			if err != nil {
				return fmt.Errorf("invalid --clinician id: %w", err)
			}

			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			summary, err := a.worker.SyncClinician(ctx, clinicianID)
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("clinician_id", summary.ClinicianID.String()).
				Bool("incremental", summary.Incremental).
				Bool("cursor_reset", summary.CursorReset).
				Int("events_seen", summary.EventsSeen).
				Int("slots_retracted", summary.RetractedCount()).
				Msg("sync cycle completed")
			return nil
		},
	}
	cmd.Flags().StringVar(&clinician, "clinician", "", "clinician UUID to sync")
	_ = cmd.MarkFlagRequired("clinician")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.pool.Close()

			if err := db.Migrate(ctx, a.pool); err != nil {
				return err
			}
			a.logger.Info().Msg("schema applied")
			return nil
		},
	}
}
