package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/calebtran/momentdeals/internal/blob/s3"
	"github.com/calebtran/momentdeals/internal/cache/redis"
	"github.com/calebtran/momentdeals/internal/config"
	"github.com/calebtran/momentdeals/internal/domain"
	"github.com/calebtran/momentdeals/internal/notify"
	"github.com/calebtran/momentdeals/internal/platform/ledger"
	"github.com/calebtran/momentdeals/internal/platform/market"
	"github.com/calebtran/momentdeals/internal/store/postgres"
	"github.com/calebtran/momentdeals/internal/tracker"
)

// Dependencies bundles every domain-level dependency the application modes
// need. It is built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	Listings domain.ListingStore
	Sales    domain.SaleStore
	Cursor   domain.CursorStore
	Audit    domain.AuditStore

	// Caches and coordination
	Oracle domain.PriceOracle
	Locks  domain.LockManager // nil when Redis is disabled
	Bus    domain.SignalBus

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// External clients
	Ledger *ledger.Client
	Market *market.Client

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them with a cleanup function to be called on
// shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	listingStore := postgres.NewListingStore(pool)
	deps.Listings = listingStore
	deps.Sales = postgres.NewSaleStore(pool)
	deps.Cursor = postgres.NewCursorStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- External clients ---
	deps.Ledger = ledger.NewClient(cfg.Ledger.GatewayURL, cfg.Ledger.RequestTimeout.Duration, logger)
	deps.Market = market.NewClient(cfg.Market.BaseURL, cfg.Market.APIKey, cfg.Market.RequestTimeout.Duration, logger)

	// Floors come from the marketplace; averages come from our own sale
	// history, falling back to the marketplace for editions we have not
	// recorded sales for yet.
	source := &priceSource{
		market: deps.Market,
		sales:  deps.Sales,
		window: time.Duration(cfg.Tracker.AverageWindowDays) * 24 * time.Hour,
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		if cfg.Redis.SharedFloorCache {
			deps.Oracle = redis.NewFloorCache(redisClient, source,
				cfg.Tracker.FloorTTL.Duration, cfg.Tracker.FloorGuardWindow.Duration, logger)
		}
	} else {
		deps.Bus = tracker.NewLocalBus()
	}
	if deps.Oracle == nil {
		deps.Oracle = tracker.NewFloorCache(source,
			cfg.Tracker.FloorTTL.Duration, cfg.Tracker.FloorGuardWindow.Duration,
			cfg.Tracker.FloorCacheCap, logger)
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, listingStore, deps.Audit, logger)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// priceSource feeds the floor/average cache: floor prices come from the
// marketplace API, average sale prices from the local sales table with the
// marketplace as fallback.
type priceSource struct {
	market domain.PriceSource
	sales  domain.SaleStore
	window time.Duration
}

func (p *priceSource) FloorPrice(ctx context.Context, groupID string) (decimal.Decimal, error) {
	return p.market.FloorPrice(ctx, groupID)
}

func (p *priceSource) AverageSalePrice(ctx context.Context, groupID string) (decimal.Decimal, error) {
	avg, err := p.sales.GroupAverage(ctx, groupID, time.Now().UTC().Add(-p.window))
	if err == nil {
		return avg, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return decimal.Decimal{}, err
	}
	return p.market.AverageSalePrice(ctx, groupID)
}
