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
// built-in defaults, applies MOMENTDEALS_* environment variable overrides,
// and returns the final Config. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MOMENTDEALS_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.GatewayURL, "MOMENTDEALS_LEDGER_GATEWAY_URL")
	setStr(&cfg.Ledger.ListingCreatedType, "MOMENTDEALS_LEDGER_LISTING_CREATED_TYPE")
	setStr(&cfg.Ledger.ListingCompletedType, "MOMENTDEALS_LEDGER_LISTING_COMPLETED_TYPE")
	setStr(&cfg.Ledger.ListingRemovedType, "MOMENTDEALS_LEDGER_LISTING_REMOVED_TYPE")
	setStr(&cfg.Ledger.CatalogType, "MOMENTDEALS_LEDGER_CATALOG_TYPE")
	setDuration(&cfg.Ledger.PollInterval, "MOMENTDEALS_LEDGER_POLL_INTERVAL")
	setUint64(&cfg.Ledger.WindowSize, "MOMENTDEALS_LEDGER_WINDOW_SIZE")
	setUint64(&cfg.Ledger.StartupLookback, "MOMENTDEALS_LEDGER_STARTUP_LOOKBACK")
	setDuration(&cfg.Ledger.RequestTimeout, "MOMENTDEALS_LEDGER_REQUEST_TIMEOUT")

	// ── Market ──
	setStr(&cfg.Market.BaseURL, "MOMENTDEALS_MARKET_BASE_URL")
	setStr(&cfg.Market.APIKey, "MOMENTDEALS_MARKET_API_KEY")
	setDuration(&cfg.Market.RequestTimeout, "MOMENTDEALS_MARKET_REQUEST_TIMEOUT")

	// ── Tracker ──
	setInt(&cfg.Tracker.ActiveCap, "MOMENTDEALS_TRACKER_ACTIVE_CAP")
	setInt(&cfg.Tracker.SeenCap, "MOMENTDEALS_TRACKER_SEEN_CAP")
	setInt(&cfg.Tracker.SoldCap, "MOMENTDEALS_TRACKER_SOLD_CAP")
	setInt(&cfg.Tracker.UnlistedCap, "MOMENTDEALS_TRACKER_UNLISTED_CAP")
	setInt(&cfg.Tracker.FloorCacheCap, "MOMENTDEALS_TRACKER_FLOOR_CACHE_CAP")
	setDuration(&cfg.Tracker.FloorTTL, "MOMENTDEALS_TRACKER_FLOOR_TTL")
	setDuration(&cfg.Tracker.FloorGuardWindow, "MOMENTDEALS_TRACKER_FLOOR_GUARD_WINDOW")
	setInt(&cfg.Tracker.AverageWindowDays, "MOMENTDEALS_TRACKER_AVERAGE_WINDOW_DAYS")
	setInt(&cfg.Tracker.WarmStartDays, "MOMENTDEALS_TRACKER_WARM_START_DAYS")
	setFloat64(&cfg.Tracker.DealAlertScore, "MOMENTDEALS_TRACKER_DEAL_ALERT_SCORE")
	setInt(&cfg.Tracker.RetentionDays, "MOMENTDEALS_TRACKER_RETENTION_DAYS")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MOMENTDEALS_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MOMENTDEALS_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MOMENTDEALS_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MOMENTDEALS_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MOMENTDEALS_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MOMENTDEALS_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MOMENTDEALS_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MOMENTDEALS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MOMENTDEALS_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MOMENTDEALS_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MOMENTDEALS_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MOMENTDEALS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOMENTDEALS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOMENTDEALS_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MOMENTDEALS_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MOMENTDEALS_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MOMENTDEALS_REDIS_TLS_ENABLED")
	setBool(&cfg.Redis.SharedFloorCache, "MOMENTDEALS_REDIS_SHARED_FLOOR_CACHE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MOMENTDEALS_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MOMENTDEALS_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MOMENTDEALS_S3_REGION")
	setStr(&cfg.S3.Bucket, "MOMENTDEALS_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MOMENTDEALS_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MOMENTDEALS_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MOMENTDEALS_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MOMENTDEALS_S3_FORCE_PATH_STYLE")
	setBool(&cfg.S3.ArchiveRawEvents, "MOMENTDEALS_S3_ARCHIVE_RAW_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MOMENTDEALS_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MOMENTDEALS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MOMENTDEALS_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "MOMENTDEALS_SERVER_API_KEY")
	setStr(&cfg.Server.APIKeyHash, "MOMENTDEALS_SERVER_API_KEY_HASH")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MOMENTDEALS_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MOMENTDEALS_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MOMENTDEALS_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MOMENTDEALS_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "MOMENTDEALS_MODE")
	setStr(&cfg.LogLevel, "MOMENTDEALS_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
