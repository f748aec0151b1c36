package db

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded goose migrations through the pool.
func Migrate(ctx context.Context, pool *Pool, logger *slog.Logger) error {
	if pool.Closed() {
		return wrapErr("migrate", ErrPoolClosed)
	}
	// Idle connections stay owned by the pgx pool, so the handle is not closed here.
	handle := stdlib.OpenDBFromPool(pool.pool)

	if logger != nil {
		goose.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/db: migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, handle, "migrations"); err != nil {
		return fmt.Errorf("platform/db: migrate: %w", err)
	}
	return nil
}
