package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tourbook/tourbook/internal/app"
	"github.com/tourbook/tourbook/internal/mail"
	"github.com/tourbook/tourbook/internal/observability"
	"github.com/tourbook/tourbook/internal/platform/cache"
	"github.com/tourbook/tourbook/internal/platform/db"
	"github.com/tourbook/tourbook/internal/users"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("tourbook exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	sender, err := mail.NewSender(cfg.Mail(), logger)
	if err != nil {
		return fmt.Errorf("mail sender: %w", err)
	}

	handler, err := app.NewAPI(app.Deps{
		Logger:  logger,
		Config:  cfg,
		Backend: backend,
		Sender:  sender,
		Metrics: observability.NewMetrics(),
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      handler,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.UserStore))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openBackend connects the configured user store backend.
func openBackend(ctx context.Context, cfg *app.Config, logger *slog.Logger) (users.Backend, func(), error) {
	switch cfg.UserStore {
	case app.StoreMemory:
		logger.Warn("using in-memory user store; data is lost on restart")
		return users.NewMemoryBackend(), func() {}, nil
	case app.StoreRedis:
		client, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
		return users.NewRedisBackend(client, cfg.RedisPrefix), closeFn, nil
	default:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, nil, err
		}
		if cfg.DBAutoMigrate {
			if err := db.Migrate(ctx, pool, db.Up, logger); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return users.NewPostgresBackend(pool), pool.Close, nil
	}
}
