// @title                       Flight Booking Auth API
// @version                     1.0
// @description                 Registration, login and refresh-token rotation for the booking application.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/flightdesk/auth-service/docs"
	"github.com/flightdesk/auth-service/internal/api"
	"github.com/flightdesk/auth-service/internal/api/handler"
	"github.com/flightdesk/auth-service/internal/core/ports"
	"github.com/flightdesk/auth-service/internal/core/service"
	"github.com/flightdesk/auth-service/internal/infrastructure/audit"
	"github.com/flightdesk/auth-service/internal/infrastructure/config"
	mongostore "github.com/flightdesk/auth-service/internal/infrastructure/db/mongo"
	pgstore "github.com/flightdesk/auth-service/internal/infrastructure/db/postgres"
	redisstore "github.com/flightdesk/auth-service/internal/infrastructure/db/redis"
	"github.com/flightdesk/auth-service/internal/infrastructure/queue"
	"github.com/flightdesk/auth-service/internal/infrastructure/security"
	"github.com/flightdesk/auth-service/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log := logger.Init(logger.Options{
		Service: "authd",
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("authd stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	pingers := make(map[string]handler.Pinger)
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				log.Warn().Err(err).Msg("close dependency")
			}
		}
	}()

	store, err := openStore(ctx, cfg, pingers, &closers)
	if err != nil {
		return err
	}
	log.Info().Str("driver", cfg.StoreDriver).Msg("credential store ready")

	var ledger ports.RotationLedger
	if cfg.LedgerEnabled() {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		closers = append(closers, rdb)
		pingers["redis"] = redisstore.Pinger(rdb)
		ledger = redisstore.NewRotationLedger(rdb)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("rotation ledger enabled")
	}

	codec, err := security.NewJWTCodec(security.CodecConfig{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	})
	if err != nil {
		return err
	}
	hasher, err := security.NewBcryptHasher(cfg.Security.HashCost)
	if err != nil {
		return err
	}

	dispatcher := queue.NewAuditDispatcher(
		cfg.Audit.Workers,
		cfg.Audit.QueueSize,
		audit.NewRecorder(logger.Component("audit")),
		logger.Component("dispatcher"),
	)
	// Workers outlive the signal so in-flight events drain on Stop.
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()

	authService, err := service.NewAuthService(store, codec, hasher, logger.Component("auth"), service.Options{
		PasswordMinLength: cfg.Security.PasswordMinLength,
		Ledger:            ledger,
		Audit:             dispatcher,
	})
	if err != nil {
		return err
	}

	e := api.NewRouter(api.Deps{
		AuthService: authService,
		Pingers:     pingers,
		Log:         logger.Component("http"),
		Swagger:     cfg.IsDevelopment(),
	})

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.IdleTimeout = 60 * time.Second

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// openStore connects the configured backend, prepares its schema and
// registers its readiness check.
func openStore(ctx context.Context, cfg *config.Config, pingers map[string]handler.Pinger, closers *[]io.Closer) (ports.CredentialStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := pgstore.Open(ctx, pgstore.Config{DSN: cfg.Postgres.DSN})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, db)
		if err := pgstore.Migrate(ctx, db); err != nil {
			return nil, err
		}
		pingers["postgres"] = db.PingContext
		return pgstore.NewCredentialStore(db), nil

	default:
		client, db, err := mongostore.Connect(ctx, mongostore.Config{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, closerFunc(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(ctx)
		}))
		store := mongostore.NewCredentialStore(db)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		pingers["mongo"] = mongostore.Pinger(client)
		return store, nil
	}
}
