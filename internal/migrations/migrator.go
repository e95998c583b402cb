package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	dbmigrations "dropshare/db/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Apply 执行 embed 的全部 up 迁移脚本，已是最新版本时直接返回。
func Apply(db *sql.DB, logger *slog.Logger) error {
	if db == nil {
		return fmt.Errorf("nil database connection")
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no new migrations to apply")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// Rollback 回滚最近的 steps 个迁移。
func Rollback(db *sql.DB, steps int, logger *slog.Logger) error {
	if db == nil {
		return fmt.Errorf("nil database connection")
	}
	if steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}

	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	defer closeMigrator(m, logger)

	if err := m.Steps(-steps); err != nil {
		return fmt.Errorf("rollback migrations: %w", err)
	}
	logger.Info("migrations rolled back", slog.Int("steps", steps))
	return nil
}

// newMigrator 从连接池借出一条专用连接交给迁移驱动，迁移结束后归还。
// postgres.WithInstance 的 Close 会连同 *sql.DB 一起关闭，这里不用它。
func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire migrate connection: %w", err)
	}

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("postgres migrate driver: %w", err)
	}

	src, err := iofs.New(dbmigrations.Files, ".")
	if err != nil {
		_ = driver.Close()
		return nil, fmt.Errorf("iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// closeMigrator 关闭迁移源并把连接归还连接池。
func closeMigrator(m *migrate.Migrate, logger *slog.Logger) {
	srcErr, dbErr := m.Close()
	if srcErr != nil || dbErr != nil {
		logger.Warn("close migrator failed", slog.Any("source_error", srcErr), slog.Any("database_error", dbErr))
	}
}
