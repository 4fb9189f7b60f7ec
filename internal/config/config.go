// Package config defines the top-level configuration for the moment deals
// tracker and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MOMENTDEALS_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Market   MarketConfig   `toml:"market"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the chain gateway endpoints and event polling parameters.
type LedgerConfig struct {
	GatewayURL string `toml:"gateway_url"`

	// Fully-qualified on-chain event types for the three tracked kinds.
	ListingCreatedType   string `toml:"listing_created_type"`
	ListingCompletedType string `toml:"listing_completed_type"`
	ListingRemovedType   string `toml:"listing_removed_type"`

	// CatalogType identifies the moment collection tracked by this
	// deployment; listing events for other item types are discarded.
	CatalogType string `toml:"catalog_type"`

	PollInterval    duration `toml:"poll_interval"`
	WindowSize      uint64   `toml:"window_size"`
	StartupLookback uint64   `toml:"startup_lookback"`
	RequestTimeout  duration `toml:"request_timeout"`
}

// MarketConfig holds the marketplace API endpoints used for metadata, price,
// and holdings lookups.
type MarketConfig struct {
	BaseURL        string   `toml:"base_url"`
	APIKey         string   `toml:"api_key"`
	RequestTimeout duration `toml:"request_timeout"`
}

// TrackerConfig holds cache bounds and scoring parameters for the listing
// tracker.
type TrackerConfig struct {
	ActiveCap   int `toml:"active_cap"`
	SeenCap     int `toml:"seen_cap"`
	SoldCap     int `toml:"sold_cap"`
	UnlistedCap int `toml:"unlisted_cap"`

	FloorCacheCap    int      `toml:"floor_cache_cap"`
	FloorTTL         duration `toml:"floor_ttl"`
	FloorGuardWindow duration `toml:"floor_guard_window"`

	// AverageWindowDays is the sale-history window behind the per-edition
	// average price.
	AverageWindowDays int `toml:"average_window_days"`

	// WarmStartDays controls how far back the durable store is read when
	// warming the in-memory book on startup.
	WarmStartDays int `toml:"warm_start_days"`

	// DealAlertScore is the minimum deal percent that triggers a
	// notification; 0 disables alerts.
	DealAlertScore float64 `toml:"deal_alert_score"`

	// RetentionDays is how long terminal listings stay in Postgres before
	// the archiver sweeps them to object storage. 0 disables the sweep.
	RetentionDays int `toml:"retention_days"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Redis is optional: when
// Enabled is false the tracker runs with process-local caches only.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	// SharedFloorCache selects the Redis-backed floor cache so multiple
	// replicas share one view of edition floors.
	SharedFloorCache bool `toml:"shared_floor_cache"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	// ArchiveRawEvents additionally uploads each fetched event window for
	// later replay.
	ArchiveRawEvents bool `toml:"archive_raw_events"`
}

// ServerConfig holds HTTP server parameters. APIKeyHash, when set, takes
// precedence over APIKey and is compared with bcrypt.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	APIKeyHash  string   `toml:"api_key_hash"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			GatewayURL:           "https://rest-mainnet.onflow.org/v1",
			ListingCreatedType:   "A.c1e4f4f4c0de5d7e.Market.MomentListed",
			ListingCompletedType: "A.c1e4f4f4c0de5d7e.Market.MomentPurchased",
			ListingRemovedType:   "A.c1e4f4f4c0de5d7e.Market.MomentWithdrawn",
			CatalogType:          "A.0b2a3299cc857e29.TopShot.NFT",
			PollInterval:         duration{10 * time.Second},
			WindowSize:           250,
			StartupLookback:      1000,
			RequestTimeout:       duration{8 * time.Second},
		},
		Market: MarketConfig{
			BaseURL:        "https://api.momentmarket.io",
			RequestTimeout: duration{6 * time.Second},
		},
		Tracker: TrackerConfig{
			ActiveCap:         2000,
			SeenCap:           10000,
			SoldCap:           5000,
			UnlistedCap:       5000,
			FloorCacheCap:     2500,
			FloorTTL:          duration{5 * time.Minute},
			FloorGuardWindow:  duration{30 * time.Second},
			AverageWindowDays: 30,
			WarmStartDays:     7,
			DealAlertScore:    60,
			RetentionDays:     90,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "momentdeals",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "momentdeals-archive",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"deal_alert", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"track":  true,
	"server": true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: track, server, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.GatewayURL == "" {
		errs = append(errs, "ledger: gateway_url must not be empty")
	}
	if c.Ledger.ListingCreatedType == "" || c.Ledger.ListingCompletedType == "" || c.Ledger.ListingRemovedType == "" {
		errs = append(errs, "ledger: all three listing event types must be set")
	}
	if c.Ledger.WindowSize == 0 {
		errs = append(errs, "ledger: window_size must be positive")
	}
	if c.Ledger.PollInterval.Duration <= 0 {
		errs = append(errs, "ledger: poll_interval must be positive")
	}

	// Market
	if c.Market.BaseURL == "" {
		errs = append(errs, "market: base_url must not be empty")
	}

	// Tracker
	if c.Tracker.ActiveCap < 1 {
		errs = append(errs, "tracker: active_cap must be >= 1")
	}
	if c.Tracker.SeenCap < c.Tracker.ActiveCap {
		errs = append(errs, "tracker: seen_cap must be >= active_cap")
	}
	if c.Tracker.FloorTTL.Duration <= 0 {
		errs = append(errs, "tracker: floor_ttl must be positive")
	}
	if c.Tracker.FloorGuardWindow.Duration < 0 {
		errs = append(errs, "tracker: floor_guard_window must not be negative")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}
	if c.Redis.SharedFloorCache && !c.Redis.Enabled {
		errs = append(errs, "redis: shared_floor_cache requires redis.enabled")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.APIKey != "" && c.Server.APIKeyHash != "" {
			errs = append(errs, "server: set api_key or api_key_hash, not both")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
