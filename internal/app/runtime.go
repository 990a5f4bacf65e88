// Package app assembles a runnable engine from a workspace: config, logger,
// database, recency backend, template library and generator.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"setback/internal/config"
	"setback/internal/db"
	"setback/internal/domain"
	"setback/internal/engine"
	"setback/internal/generator"
	"setback/internal/library"
	"setback/internal/logging"
	"setback/internal/migrate"
	"setback/internal/severity"
)

// Options override what the workspace config says.
type Options struct {
	Workspace string
	// RedisAddr forces the redis recency backend at this address.
	RedisAddr string
	LogLevel  string
	// Seed makes template selection reproducible; 0 seeds randomly.
	Seed   uint64
	Logger *zap.Logger
}

// Runtime owns the resources behind an engine. Close releases them.
type Runtime struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Logger    *zap.Logger

	redis *redis.Client
}

// Open loads the workspace config (defaults when setback.yml is absent),
// migrates the database and validates the content packs. Content defects are
// fatal here so they never surface mid-game.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.RedisAddr != "" {
		cfg.Recency.Backend = "redis"
		cfg.Recency.Redis.Addr = opts.RedisAddr
	}
	logger := opts.Logger
	if logger == nil {
		level := cfg.Log.Level
		if opts.LogLevel != "" {
			level = opts.LogLevel
		}
		logger, err = logging.New(level, cfg.Log.Format)
		if err != nil {
			return nil, err
		}
	}
	rt := &Runtime{Workspace: opts.Workspace, Config: cfg, Logger: logger}

	recency, client, err := NewRecency(cfg)
	if err != nil {
		return nil, err
	}
	rt.redis = client
	if client != nil {
		if err := client.Ping(ctx).Err(); err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Recency.Redis.Addr, err)
		}
	}

	libOpts := []library.Option{library.WithRecency(recency)}
	if opts.Seed != 0 {
		libOpts = append(libOpts, library.WithSeed(opts.Seed))
	}
	gen, err := NewGenerator(cfg, opts.Workspace, libOpts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := gen.Validate(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.DB = conn
	if err := migrate.Migrate(ctx, conn); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rt.Engine = engine.New(conn, cfg, gen, logger)
	rt.Engine.RefreshMetrics(ctx)
	logger.Info("runtime ready",
		zap.String("workspace", opts.Workspace),
		zap.String("recency_backend", recencyBackend(cfg)),
		zap.Strings("content_packs", cfg.ContentPacks))
	return rt, nil
}

// Close releases the database and redis connections.
func (r *Runtime) Close() error {
	var errs []error
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	if r.redis != nil {
		errs = append(errs, r.redis.Close())
	}
	if r.Logger != nil {
		_ = r.Logger.Sync()
	}
	return errors.Join(errs...)
}

// NewRecency picks the recency store configured for the deployment. The
// returned client is nil for the memory backend.
func NewRecency(cfg *config.Config) (library.RecencyStore, *redis.Client, error) {
	size := cfg.Recency.WindowSize
	if size <= 0 {
		size = library.DefaultWindowSize
	}
	switch recencyBackend(cfg) {
	case "memory":
		return library.NewMemoryRecency(size), nil, nil
	case "redis":
		if cfg.Recency.Redis.Addr == "" {
			return nil, nil, domain.NewConfigurationError("recency.redis.addr required for redis backend")
		}
		client := redis.NewClient(&redis.Options{Addr: cfg.Recency.Redis.Addr, DB: cfg.Recency.Redis.DB})
		store := library.NewRedisRecency(client, library.RedisRecencyConfig{
			Prefix: cfg.Recency.Redis.Prefix,
			Size:   size,
			TTL:    cfg.Recency.Redis.TTL,
		})
		return store, client, nil
	}
	return nil, nil, domain.NewConfigurationError("unknown recency backend %q", cfg.Recency.Backend)
}

func recencyBackend(cfg *config.Config) string {
	if cfg.Recency.Backend == "" {
		return "memory"
	}
	return cfg.Recency.Backend
}

// NewGenerator loads the configured content packs into a fresh library and
// wires it to a generator. The caller should Validate the result.
func NewGenerator(cfg *config.Config, workspace string, opts ...library.Option) (*generator.Generator, error) {
	classifier, err := severity.NewClassifier(cfg.Severity)
	if err != nil {
		return nil, err
	}
	templates, err := cfg.LoadTemplates(workspace)
	if err != nil {
		return nil, err
	}
	lib := library.New(opts...)
	categories := make([]domain.Category, 0, len(templates))
	for c := range templates {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
	var problems []string
	for _, c := range categories {
		if err := lib.Register(c, templates[c]); err != nil {
			var cfgErr *domain.ConfigurationError
			if errors.As(err, &cfgErr) {
				problems = append(problems, cfgErr.Problems...)
				continue
			}
			return nil, err
		}
	}
	if len(problems) > 0 {
		return nil, &domain.ConfigurationError{Problems: problems}
	}
	return generator.New(lib, classifier, cfg.GeneratorSettings()), nil
}
