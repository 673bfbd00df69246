// Package application assembles the import service and its backends from
// configuration. Both the HTTP server and the CLI start through it.
package application

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/medimport/internal/config"
	"github.com/JonMunkholm/medimport/internal/core"
	_ "github.com/JonMunkholm/medimport/internal/core/schemas" // Register import kinds
	"github.com/JonMunkholm/medimport/internal/lock"
	"github.com/JonMunkholm/medimport/internal/store"
	"github.com/JonMunkholm/medimport/internal/telemetry"
)

// ServiceConfig converts the import settings, loading the alias file if
// one is configured.
func ServiceConfig(cfg config.ImportConfig) (core.ServiceConfig, error) {
	policy, err := core.ParseDuplicatePolicy(cfg.DefaultPolicy)
	if err != nil {
		return core.ServiceConfig{}, err
	}
	out := core.ServiceConfig{
		MaxConcurrent:  cfg.MaxConcurrent,
		MaxWaitTime:    cfg.MaxWaitTime,
		Timeout:        cfg.Timeout,
		Workers:        cfg.Workers,
		DefaultPolicy:  policy,
		MobilePrefixes: cfg.MobilePrefixes,
	}
	if cfg.AliasFile != "" {
		if out.Aliases, err = core.LoadAliasOverrides(cfg.AliasFile); err != nil {
			return core.ServiceConfig{}, fmt.Errorf("load alias file: %w", err)
		}
	}
	return out, nil
}

// OpenPool connects to Postgres with the configured pool limits and checks
// the connection.
func OpenPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := store.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// OpenRedis returns nil when no URL is configured.
func OpenRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Backends are the shared resources behind a Postgres-backed service.
type Backends struct {
	Pool     *pgxpool.Pool
	SQL      *sql.DB
	Redis    *redis.Client
	Store    *store.Store
	Audit    *store.AuditWriter
	Progress *telemetry.ProgressTracker
}

// Close releases every backend.
func (b *Backends) Close() {
	if b.Redis != nil {
		b.Redis.Close()
	}
	if b.SQL != nil {
		b.SQL.Close()
	}
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// NewBackends wraps an open pool and optional Redis client.
func NewBackends(pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) *Backends {
	sqlDB := stdlib.OpenDBFromPool(pool)
	b := &Backends{
		Pool:  pool,
		SQL:   sqlDB,
		Redis: rdb,
		Store: store.New(pool),
		Audit: store.NewAuditWriter(sqlDB, logger),
	}
	if rdb != nil {
		b.Progress = telemetry.NewProgressTracker(rdb, logger)
	}
	return b
}

// NewService builds the import service over the backends. Row outcomes go
// to the log, the audit trail and, with Redis, the progress counters.
func (b *Backends) NewService(cfg config.Config, logger *slog.Logger) (*core.Service, error) {
	svcCfg, err := ServiceConfig(cfg.Import)
	if err != nil {
		return nil, err
	}

	observers := core.MultiObserver{core.LogObserver{Logger: logger}, b.Audit}
	if b.Progress != nil {
		observers = append(observers, b.Progress)
	}

	return core.NewService(core.ServiceDeps{
		Store:    b.Store,
		Scopes:   b.Store,
		History:  b.Store,
		Locker:   lock.New(b.Redis, b.SQL, cfg.Redis.LockTTL),
		Observer: observers,
		Logger:   logger,
	}, svcCfg)
}
