package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/seatwatch/internal/app/storage/auth"
	"github.com/stacklok/seatwatch/internal/config"
	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/store/postgres"
)

// DatabaseFactory creates the PostgreSQL backed store
type DatabaseFactory struct {
	config *config.Config
	pool   *pgxpool.Pool
	store  *postgres.Store
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory creates a new database-backed storage factory.
// It establishes a connection pool to the configured PostgreSQL database.
func NewDatabaseFactory(ctx context.Context, cfg *config.Config) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := buildDatabaseConnectionPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	tables := cfg.Storage.Tables
	st := postgres.New(pool,
		postgres.WithTables(postgres.Tables{
			Courses:     tables.Courses,
			Users:       tables.Users,
			UserCourses: tables.UserCourses,
			Ledger:      tables.Ledger,
		}),
		postgres.WithPageSize(cfg.Storage.GetPageSize()),
	)

	return &DatabaseFactory{
		config: cfg,
		pool:   pool,
		store:  st,
	}, nil
}

// CreateStore returns the database-backed store
func (d *DatabaseFactory) CreateStore(_ context.Context) (store.Store, error) {
	return d.store, nil
}

// Cleanup releases resources held by the database factory.
// This closes the database connection pool and any active connections.
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// buildDatabaseConnectionPool creates a database connection pool with proper configuration
func buildDatabaseConnectionPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	connStr, err := auth.ConnectionString(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database credentials: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database connection string: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	lifetime, err := cfg.GetConnMaxLifetime()
	if err != nil {
		return nil, err
	}
	if lifetime > 0 {
		poolConfig.MaxConnLifetime = lifetime
	}

	hook, err := auth.BeforeConnect(ctx, cfg, cfg.User)
	if err != nil {
		return nil, fmt.Errorf("failed to configure dynamic authentication: %w", err)
	}
	if hook != nil {
		poolConfig.BeforeConnect = hook
		slog.Info("Dynamic database authentication enabled")
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	slog.Info("Database connection pool created successfully")
	return pool, nil
}
