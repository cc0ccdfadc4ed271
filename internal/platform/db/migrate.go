package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tourbook/tourbook/internal/platform/db/migrations"
)

// Direction selects which way Migrate moves the schema.
type Direction string

const (
	Up     Direction = "up"
	Down   Direction = "down"
	Status Direction = "status"
)

func runGoose(ctx context.Context, dir Direction, db *sql.DB) error {
	switch dir {
	case Up:
		return goose.UpContext(ctx, db, ".")
	case Down:
		return goose.DownContext(ctx, db, ".")
	case Status:
		return goose.StatusContext(ctx, db, ".")
	default:
		return fmt.Errorf("unknown direction %q", dir)
	}
}

// Migrate applies the embedded migrations to the database behind pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dir Direction, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("platform/db: goose dialect: %w", err)
	}
	if err := runGoose(ctx, dir, sqlDB); err != nil {
		return fmt.Errorf("platform/db: migrate %s: %w", dir, err)
	}
	return nil
}

type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}
