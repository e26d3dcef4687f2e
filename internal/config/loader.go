package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LEDGER_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty).
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.Driver, "LEDGER_DATABASE_DRIVER")
	setStr(&cfg.Database.DSN, "LEDGER_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "LEDGER_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "LEDGER_DATABASE_HOST")
	setInt(&cfg.Database.Port, "LEDGER_DATABASE_PORT")
	setStr(&cfg.Database.Database, "LEDGER_DATABASE_NAME")
	setStr(&cfg.Database.User, "LEDGER_DATABASE_USER")
	setStr(&cfg.Database.Password, "LEDGER_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "LEDGER_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "LEDGER_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "LEDGER_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "LEDGER_DATABASE_RUN_MIGRATIONS")
	setStr(&cfg.Database.SQLitePath, "LEDGER_DATABASE_SQLITE_PATH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LEDGER_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "LEDGER_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.MarketCacheTTL, "LEDGER_REDIS_MARKET_CACHE_TTL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "LEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "LEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "LEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LEDGER_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "LEDGER_S3_PREFIX")

	// ── Server ──
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGER_SERVER_CORS_ORIGINS")
	setBool(&cfg.Server.RequireSignatures, "LEDGER_SERVER_REQUIRE_SIGNATURES")
	setDuration(&cfg.Server.SignatureMaxSkew, "LEDGER_SERVER_SIGNATURE_MAX_SKEW")
	setInt(&cfg.Server.RateLimit, "LEDGER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "LEDGER_SERVER_RATE_WINDOW")

	// ── Ledger ──
	setStr(&cfg.Ledger.ProgramOwner, "LEDGER_LEDGER_PROGRAM_OWNER")
	setUint64(&cfg.Ledger.RewardAmount, "LEDGER_LEDGER_REWARD_AMOUNT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LEDGER_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "LEDGER_ARCHIVE_CRON")
	setDuration(&cfg.Archive.MinAge, "LEDGER_ARCHIVE_MIN_AGE")
	setInt(&cfg.Archive.BatchSize, "LEDGER_ARCHIVE_BATCH_SIZE")
	setDuration(&cfg.Archive.LockTTL, "LEDGER_ARCHIVE_LOCK_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LEDGER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LEDGER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LEDGER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LEDGER_NOTIFY_EVENTS")

	// ── Log ──
	setStr(&cfg.Log.Level, "LEDGER_LOG_LEVEL")
	setStr(&cfg.Log.File, "LEDGER_LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, "LEDGER_LOG_MAX_SIZE_MB")
	setInt(&cfg.Log.MaxBackups, "LEDGER_LOG_MAX_BACKUPS")
	setInt(&cfg.Log.MaxAgeDays, "LEDGER_LOG_MAX_AGE_DAYS")
	setBool(&cfg.Log.Compress, "LEDGER_LOG_COMPRESS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LEDGER_MODE")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
