package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"horse.fit/themedup/internal/config"
	"horse.fit/themedup/internal/globaltime"
)

// ErrNoRows reports a lookup by key that matched nothing.
var ErrNoRows = errors.New("record not found")

var errPoolNotInitialized = errors.New("database pool is not initialized")

// Pool owns the gorm handle behind theme loading and run persistence.
type Pool struct {
	gdb   *gorm.DB
	sqlDB *sql.DB
}

// NewPool connects to DATABASE_URL, verifies the connection and brings the
// research schema up to date.
func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:  logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
		NowFunc: globaltime.UTC,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	configureConnections(sqlDB, int(cfg.DBMaxConns), int(cfg.DBMinConns))

	pool := &Pool{gdb: gdb, sqlDB: sqlDB}
	if err := pool.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := pool.migrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return pool, nil
}

// Runs are written in one transaction each, so a handful of connections is
// plenty; idle ones are recycled so a long-lived server survives failovers.
func configureConnections(sqlDB *sql.DB, maxOpen, minIdle int) {
	if maxOpen <= 0 {
		maxOpen = 8
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(max(1, min(minIdle, maxOpen)))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
}

// Ping round-trips a query so health checks exercise the driver and not
// only the socket.
func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.gdb == nil {
		return errPoolNotInitialized
	}
	var one int
	if err := p.gdb.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

// IsNoRows reports whether err means the requested row does not exist.
func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows) ||
		errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, sql.ErrNoRows)
}

// gormLogLevel keeps SQL tracing for debug runs only. Gorm's Info level
// prints every statement, which on a run save means every pair row.
func gormLogLevel(appLevel string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(appLevel)) {
	case "trace", "debug":
		return logger.Info
	case "error", "fatal", "panic":
		return logger.Error
	case "disabled", "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}
