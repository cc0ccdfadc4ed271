package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tourbook/tourbook/internal/app"
	"github.com/tourbook/tourbook/internal/platform/db"
)

func main() {
	direction := flag.String("direction", string(db.Up), "migration direction: up, down or status")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 1})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, db.Direction(*direction), logger); err != nil {
		logger.Error("migrate", slog.Any("error", err))
		pool.Close()
		os.Exit(1)
	}
	logger.Info("migrations complete", slog.String("direction", *direction))
}
