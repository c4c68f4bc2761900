// Package main - entry point for the dojo attendance kiosk.
//
// The kiosk sits at the academy's front desk and records attendance against
// the remote membership backend. The network there is unreliable, so every
// write can fall back to a durable local queue; a background coordinator
// drains the queue whenever the backend is reachable.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: pure business logic without external dependencies
// - Application: use case orchestration (Commands/Queries)
// - Infrastructure: persistence, remote gateway, sync, scheduler
// - Interface: local HTTP API for the front-desk tablet
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Application layer
	"github.com/dojo-hub/dojo-attendance-hub/internal/application/command"
	"github.com/dojo-hub/dojo-attendance-hub/internal/application/query"

	// Infrastructure layer
	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/persistence/postgres"
	kioskredis "github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/persistence/redis"
	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/persistence/sqlite"
	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/remote"
	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/scheduler"
	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/scheduler/jobs"
	kiosksync "github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/sync"
	"github.com/dojo-hub/dojo-attendance-hub/internal/infrastructure/throttle"

	// Interface layer
	httpserver "github.com/dojo-hub/dojo-attendance-hub/internal/interface/http"

	// Domain and config
	"github.com/dojo-hub/dojo-attendance-hub/config"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. LOAD CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. SETUP LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting dojo attendance kiosk",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"tenant", cfg.Backend.TenantID,
		"backend_mode", string(cfg.Backend.Mode),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. OPEN LOCAL STORAGE (SQLite: offline queue + throttle windows)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("opening local storage", "path", cfg.Storage.Path)
	db, err := sqlite.Open(ctx, sqlite.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to open local storage: %w", err)
	}
	defer func() {
		log.Info("closing local storage")
		_ = db.Close()
	}()

	queue := sqlite.NewQueueRepository(db)
	throttleStore := sqlite.NewThrottleRepository(db)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. BUILD THE MEMBERSHIP GATEWAY (REST or direct Postgres)
	// ─────────────────────────────────────────────────────────────────────────
	gateway, gatewayClose, err := buildGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer gatewayClose()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. PENDING SHADOW (Redis when several kiosks share a mat area)
	// ─────────────────────────────────────────────────────────────────────────
	var shadow command.PendingShadow
	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis for the shared pending shadow")
		redisClient, err := kioskredis.NewClient(ctx, kioskredis.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("Redis unavailable, falling back to in-process shadow", "error", err)
		} else {
			defer func() { _ = redisClient.Close() }()
			shadow = kioskredis.NewShadow(redisClient, cfg.Redis.PendingTTL)
		}
	}
	if shadow == nil {
		shadow = kiosksync.NewMemoryShadow(cfg.Redis.PendingTTL, nil)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ATTEMPT THROTTLE
	// ─────────────────────────────────────────────────────────────────────────
	guard := throttle.New(throttleStore, throttle.Config{
		WindowSize:    cfg.Kiosk.ThrottleWindow,
		MaxAttempts:   cfg.Kiosk.ThrottleMaxAttempts,
		BlockDuration: cfg.Kiosk.ThrottleBlock,
	}, nil)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. APPLICATION HANDLERS (CQRS)
	// ─────────────────────────────────────────────────────────────────────────
	registerHandler := command.NewRegisterCheckInHandler(gateway, queue, shadow, guard,
		command.RegisterCheckInHandlerConfig{Cooldown: cfg.Kiosk.Cooldown})

	statusHandler := query.NewMemberStatusHandler(gateway, query.MemberStatusHandlerConfig{
		Thresholds: member.FlagThresholds{
			WarningAfterDays:  cfg.Kiosk.WarningAfterDays,
			CriticalAfterDays: cfg.Kiosk.CriticalAfterDays,
		},
		Location: cfg.App.Location,
	})

	grantHandler := command.NewGrantStripeHandler(gateway)

	// ─────────────────────────────────────────────────────────────────────────
	// 8. SYNC COORDINATOR + SCHEDULER + CONNECTIVITY WATCHER
	// ─────────────────────────────────────────────────────────────────────────
	coordinator := kiosksync.NewCoordinator(gateway, queue, log)

	sched := scheduler.New(log)
	if cfg.Sync.Enabled {
		flushJob := jobs.NewFlushOutbox(coordinator, log)
		if err := sched.Register(flushJob, scheduler.Every(cfg.Sync.FlushInterval)); err != nil {
			return fmt.Errorf("failed to register flush job: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	// Connectivity transitions trigger an out-of-band flush so queued
	// check-ins land the moment the backend comes back.
	watcher := kiosksync.NewWatcher(gateway, cfg.Sync.HealthPollInterval, log, func() {
		if err := sched.Trigger(ctx, jobs.FlushOutboxJobName); err != nil {
			log.Warn("failed to trigger flush on reconnect", "error", err)
		}
	})
	if cfg.Sync.Enabled {
		go watcher.Run(ctx)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. LOCAL HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.Config{
		Host:          cfg.HTTP.Host,
		Port:          cfg.HTTP.Port,
		ReadTimeout:   cfg.HTTP.ReadTimeout,
		WriteTimeout:  cfg.HTTP.WriteTimeout,
		IdleTimeout:   cfg.HTTP.IdleTimeout,
		EnableMetrics: cfg.Observability.MetricsEnabled,
	}, httpserver.Dependencies{
		RegisterCheckIn: registerHandler,
		GrantStripe:     grantHandler,
		MemberStatus:    statusHandler,
		Queue:           queue,
		Backend:         gateway,
		Logger:          log,
	})

	serverErr := server.StartAsync()
	log.Info("kiosk is ready", "address", server.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}

	// One last drain attempt so a planned shutdown leaves as little behind
	// as possible. Failures are fine - the queue is durable.
	if cfg.Sync.Enabled {
		if report, err := coordinator.Sync(shutdownCtx); err == nil {
			log.Info("final queue drain",
				"applied", report.Applied,
				"remaining", report.Remaining,
			)
		}
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// buildGateway constructs the membership gateway per the configured mode.
func buildGateway(ctx context.Context, cfg *config.Config, log *slog.Logger) (attendance.Gateway, func(), error) {
	switch cfg.Backend.Mode {
	case config.GatewayPostgres:
		log.Info("connecting to membership database", "host", cfg.Database.Host)
		conn, err := postgres.NewConnection(ctx, postgres.Config{
			Host:           cfg.Database.Host,
			Port:           cfg.Database.Port,
			Database:       cfg.Database.Name,
			User:           cfg.Database.User,
			Password:       cfg.Database.Password,
			SSLMode:        cfg.Database.SSLMode,
			MaxConns:       int32(cfg.Database.MaxConns),
			MinConns:       int32(cfg.Database.MinConns),
			ConnectTimeout: cfg.Database.ConnectTimeout,
			QueryTimeout:   cfg.Database.QueryTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to membership database: %w", err)
		}

		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		gateway := postgres.NewMemberRepository(conn, member.TenantID(cfg.Backend.TenantID))
		return gateway, conn.Close, nil

	default:
		client := remote.NewClient(remote.ClientConfig{
			BaseURL:            cfg.Backend.BaseURL,
			APIKey:             cfg.Backend.APIKey,
			TenantID:           cfg.Backend.TenantID,
			Timeout:            cfg.Backend.RequestTimeout,
			MaxRetries:         cfg.Backend.MaxRetries,
			RetryBaseDelay:     cfg.Backend.RetryBaseDelay,
			RetryMaxDelay:      cfg.Backend.RetryMaxDelay,
			BreakerThreshold:   cfg.Backend.CircuitBreakerThreshold,
			BreakerTimeout:     cfg.Backend.CircuitBreakerTimeout,
			BreakerHalfOpenMax: cfg.Backend.CircuitBreakerHalfOpenMax,
			Logger:             log,
		})
		return client, func() {}, nil
	}
}

// setupLogger configures structured logging.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Observability.LogLevel)}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// parseLogLevel maps a level name onto slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
