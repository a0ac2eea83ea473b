// Package app assembles the import Service from configuration. Both the
// HTTP server and the operator CLI start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/catalogimport/internal/blob"
	"github.com/JonMunkholm/catalogimport/internal/blob/memory"
	"github.com/JonMunkholm/catalogimport/internal/blob/s3"
	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/config"
	"github.com/JonMunkholm/catalogimport/internal/core"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
	"github.com/JonMunkholm/catalogimport/internal/notify"
	"github.com/JonMunkholm/catalogimport/internal/store/postgres"
)

// App holds the wired components. Close releases them.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Catalog  *catalog.PostgresCatalog
	Sessions core.SessionStore
	Blobs    blob.Store // nil when archiving is disabled
	Metrics  *metrics.Recorder
	Service  *core.Service

	closers []func() error
}

// Option adjusts how New wires the App.
type Option func(*options)

type options struct {
	sessions core.SessionStore
}

// WithSessionStore replaces the Postgres session store.
func WithSessionStore(s core.SessionStore) Option {
	return func(o *options) { o.sessions = s }
}

// New connects to Postgres, runs migrations and builds the Service.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := LoadAliases(cfg.Import.AliasFile); err != nil {
		return nil, err
	}

	pool, err := OpenPool(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Pool: pool}
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	a.Catalog = catalog.NewPostgresCatalog(pool)
	if err := a.Catalog.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}

	if o.sessions != nil {
		a.Sessions = o.sessions
	} else {
		pg := postgres.NewSessionStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate sessions: %w", err)
		}
		a.Sessions = pg
	}

	a.Blobs, err = OpenBlobStore(ctx, cfg.Blob)
	if err != nil {
		a.Close()
		return nil, err
	}

	notifier, closeNotifier, err := NewNotifier(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeNotifier)

	a.Metrics = metrics.New()
	a.Service = core.NewService(a.Sessions, a.Catalog, ServiceOptions(cfg.Import, a.Blobs, notifier, a.Metrics)...)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ServiceOptions translates import settings into Service options.
func ServiceOptions(cfg config.ImportConfig, blobs blob.Store, n core.Notifier, obs core.Observer) []core.Option {
	opts := []core.Option{
		core.WithLimits(core.Limits{
			MaxRows:       cfg.MaxRows,
			MaxBytes:      cfg.MaxFileSize,
			LockWait:      cfg.LockWait,
			ScopeLockWait: cfg.LockWait,
			CommitTimeout: cfg.CommitTimeout,
		}),
		core.WithLimiter(core.NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime)),
		core.WithNotifier(n),
		core.WithObserver(obs),
	}
	if blobs != nil {
		opts = append(opts, core.WithBlobStore(blobs))
	}
	return opts
}

// OpenPool connects and pings Postgres with the configured pool limits.
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
	return pool, nil
}

// OpenBlobStore returns the configured archive driver, or nil for "none".
func OpenBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "none":
		return nil, nil
	case "memory":
		return memory.New(), nil
	case "s3":
		st, err := s3.New(ctx, s3.Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewNotifier always logs events and, when Redis is configured, publishes
// them there too. An unreachable Redis is logged, not fatal: event delivery
// never blocks imports.
func NewNotifier(ctx context.Context, cfg config.RedisConfig) (core.Notifier, func() error, error) {
	notifiers := core.MultiNotifier{notify.NewLog(nil)}
	if !cfg.Enabled() {
		return notifiers, func() error { return nil }, nil
	}
	client, err := notify.NewRedisClient(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable, events will be retried per publish", "error", err)
	}
	notifiers = append(notifiers, notify.NewRedis(client, cfg.EventChannel))
	return notifiers, client.Close, nil
}

// LoadAliases applies the optional column alias file.
func LoadAliases(path string) error {
	if path == "" {
		return nil
	}
	overrides, err := core.LoadAliasFile(path)
	if err != nil {
		return err
	}
	if err := core.ApplyAliasOverrides(overrides); err != nil {
		return fmt.Errorf("apply alias file %s: %w", path, err)
	}
	slog.Info("column aliases loaded", "path", path, "entity_types", len(overrides))
	return nil
}
