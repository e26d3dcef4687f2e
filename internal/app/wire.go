package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/marketledger/internal/auth"
	s3blob "github.com/alanyoungcy/marketledger/internal/blob/s3"
	"github.com/alanyoungcy/marketledger/internal/cache/redis"
	"github.com/alanyoungcy/marketledger/internal/config"
	"github.com/alanyoungcy/marketledger/internal/custody"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/notify"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/store/postgres"
	"github.com/alanyoungcy/marketledger/internal/store/sqlite"
)

// Dependencies bundles every concrete dependency the application modes need.
// Optional ones stay nil when their backend is disabled.
type Dependencies struct {
	Store domain.LedgerStore

	// Redis-backed, nil when redis.enabled is false.
	MarketCache domain.MarketCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	NonceStore  domain.NonceStore

	// S3-backed, nil when s3.enabled is false.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// Health checks every wired backend.
	Health map[string]handler.HealthCheck
}

// needsS3 returns true for modes that run the archiver.
func needsS3(cfg *config.Config) bool {
	switch strings.ToLower(cfg.Mode) {
	case "archive":
		return true
	case "full":
		return cfg.Archive.Enabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Health: map[string]handler.HealthCheck{}}
	mode := strings.ToLower(cfg.Mode)

	// --- Ledger store ---
	store, ping, err := openStore(ctx, cfg, mode == "migrate")
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, store.Close)
	deps.Store = store
	deps.Health["database"] = ping

	if mode == "migrate" {
		return deps, cleanup, nil
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.MarketCacheTTL.Duration)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.NonceStore = redis.NewNonceStore(redisClient)
		deps.Health["redis"] = redisClient.Ping
	} else {
		logger.WarnContext(ctx, "wire: redis disabled; running without cache, event bus or rate limiting")
	}

	// --- S3 settlement archive ---
	if cfg.S3.Enabled || needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client))
		deps.Health["s3"] = s3Client.Health
	}

	// --- Notifications ---
	deps.Notifier = notify.New(notify.Config{
		TelegramToken:     cfg.Notify.TelegramToken,
		TelegramChatID:    cfg.Notify.TelegramChatID,
		DiscordWebhookURL: cfg.Notify.DiscordWebhookURL,
		Events:            cfg.Notify.Events,
	}, logger)

	return deps, cleanup, nil
}

// openStore connects the configured ledger store. Postgres migrations run when
// database.run_migrations is set or forceMigrate is true; the SQLite schema is
// always migrated on open.
func openStore(ctx context.Context, cfg *config.Config, forceMigrate bool) (domain.LedgerStore, handler.HealthCheck, error) {
	custodyCfg := custody.Config{
		ProgramOwner:  cfg.Ledger.ProgramOwner,
		MintAuthority: auth.MintAuthority(),
	}

	switch strings.ToLower(cfg.Database.Driver) {
	case "sqlite":
		store, err := sqlite.Open(cfg.Database.SQLitePath, custodyCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		return store, store.Ping, nil

	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		if cfg.Database.RunMigrations || forceMigrate {
			if err := pgClient.RunMigrations(ctx); err != nil {
				pgClient.Close()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		store := postgres.NewLedgerStore(pgClient, custodyCfg)
		return store, store.Ping, nil

	default:
		return nil, nil, fmt.Errorf("wire: unknown database driver %q", cfg.Database.Driver)
	}
}
