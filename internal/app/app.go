// Package app assembles the stamping and verification components from a
// loaded configuration. Both the daemon and the CLI build on it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/ProofStamp/internal/canon"
	"github.com/jmerrifield20/ProofStamp/internal/config"
	"github.com/jmerrifield20/ProofStamp/internal/content"
	"github.com/jmerrifield20/ProofStamp/internal/health"
	"github.com/jmerrifield20/ProofStamp/internal/ledger"
	"github.com/jmerrifield20/ProofStamp/internal/metrics"
	"github.com/jmerrifield20/ProofStamp/internal/stamp"
	"github.com/jmerrifield20/ProofStamp/internal/verify"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Store    content.Store
	Recorder *stamp.Recorder
	Verifier *verify.Verifier
	// Health probes the external backends. Start it to keep /readyz current.
	Health *health.Checker

	probes  []health.Probe
	closers []func()
}

// New connects to the configured backends and wires the components. A
// ledger without credentials is not an error: stamping then runs in
// local-only mode and ledger verdicts are unknown.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.openStore(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	client, raw := a.openLedger(cfg, logger)

	var opts []stamp.Option
	opts = append(opts, stamp.WithConflictRetries(cfg.Ledger.ConflictRetries))
	if raw != nil && cfg.Cache.RedisURL != "" {
		cached, err := a.openCache(ctx, cfg, raw, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		raw = cached
		opts = append(opts, stamp.WithAfterAppend(func(ctx context.Context) {
			cached.Invalidate(ctx, cfg.Ledger.Path, cfg.Ledger.Branch)
		}))
	}

	hasher := canon.New()
	a.Recorder = stamp.NewRecorder(store, hasher, client, cfg.Ledger.Path, logger, opts...)
	a.Verifier = verify.New(store, hasher, raw, verify.Config{
		SiteOrigin:        cfg.Site.Origin,
		Path:              cfg.Ledger.Path,
		Branch:            cfg.Ledger.Branch,
		FetchTimeout:      cfg.Verify.FetchTimeout,
		UserAgent:         cfg.Ledger.UserAgent,
		AllowedHosts:      cfg.Verify.AllowedHosts,
		AllowPrivateHosts: cfg.Verify.AllowPrivateHosts,
	}, logger)

	a.Health = health.New(a.probes, health.Config{
		CheckInterval: cfg.Health.CheckInterval,
		ProbeTimeout:  cfg.Health.ProbeTimeout,
		FailThreshold: cfg.Health.FailThreshold,
	}, logger)
	a.Health.SetMetricsRecord(metrics.RecordDependencyProbe)
	return a, nil
}

// Close releases backend connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (content.Store, error) {
	if cfg.Content.Backend == config.BackendMemory {
		logger.Warn("using in-memory content store; documents are not persisted")
		return content.NewMemoryStore(), nil
	}

	db, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.closers = append(a.closers, db.Close)
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	a.probes = append(a.probes, health.Probe{Name: "database", Check: db.Ping})
	logger.Info("connected to postgres")
	return content.NewPostgresStore(db), nil
}

// openLedger returns the write client (nil when not configured) and the
// raw reader used for verification (nil when owner/repo are unknown).
func (a *App) openLedger(cfg *config.Config, logger *zap.Logger) (*ledger.Client, ledger.RawReader) {
	if cfg.Ledger.Backend == config.BackendMemory {
		logger.Warn("using in-memory ledger host; entries are not persisted")
		host := ledger.NewMemoryHost()
		return ledger.NewClient(host, cfg.Ledger.Branch, logger), host
	}

	gh := cfg.Ledger.GitHub()
	var raw ledger.RawReader
	if r, err := ledger.NewGitHubRawReader(gh); err != nil {
		logger.Warn("ledger raw reader disabled", zap.Error(err))
	} else {
		raw = r
	}

	host, err := ledger.NewGitHubHost(gh, logger)
	if err != nil {
		var cfgErr *ledger.ConfigError
		if errors.As(err, &cfgErr) {
			logger.Warn("ledger not configured, stamping local hashes only", zap.String("missing", cfgErr.Field))
		} else {
			logger.Error("ledger host setup failed, stamping local hashes only", zap.Error(err))
		}
		return nil, raw
	}
	a.probes = append(a.probes, health.HTTPProbe("ledger", gh.APIURL, nil))
	logger.Info("ledger configured",
		zap.String("repo", gh.Owner+"/"+gh.Repo),
		zap.String("path", cfg.Ledger.Path),
		zap.String("branch", cfg.Ledger.Branch),
	)
	return ledger.NewClient(host, cfg.Ledger.Branch, logger), raw
}

func (a *App) openCache(ctx context.Context, cfg *config.Config, raw ledger.RawReader, logger *zap.Logger) (*ledger.CachedRawReader, error) {
	opts, err := redis.ParseURL(cfg.Cache.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse cache.redis_url: %w", err)
	}
	rdb := redis.NewClient(opts)
	a.closers = append(a.closers, func() { rdb.Close() })
	a.probes = append(a.probes, health.Probe{Name: "cache", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Reads fall through to the host while redis is down.
		logger.Warn("redis unreachable, ledger cache degraded", zap.Error(err))
	} else {
		logger.Info("ledger cache enabled", zap.Duration("ttl", cfg.Cache.TTL))
	}
	return ledger.NewCachedRawReader(raw, rdb, cfg.Cache.TTL, logger), nil
}
