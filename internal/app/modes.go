package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/calebtran/momentdeals/internal/domain"
	"github.com/calebtran/momentdeals/internal/server"
	"github.com/calebtran/momentdeals/internal/server/handler"
	"github.com/calebtran/momentdeals/internal/server/ws"
	"github.com/calebtran/momentdeals/internal/tracker"
)

// TrackMode runs the event poller, deal alerts, and the retention sweep
// without the HTTP API.
func (a *App) TrackMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting track mode")

	g, ctx := errgroup.WithContext(ctx)

	svc, err := a.buildService(ctx, deps)
	if err != nil {
		return fmt.Errorf("track mode: %w", err)
	}
	poller := a.buildPoller(deps, svc)

	g.Go(func() error {
		return poller.RunLoop(ctx)
	})
	a.startRetentionSweep(ctx, g, deps)

	return g.Wait()
}

// ServerMode serves the HTTP API and WebSocket feed over the warm book
// without polling the ledger. Useful for read replicas next to a track-mode
// instance sharing Postgres and Redis.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	svc, err := a.buildService(ctx, deps)
	if err != nil {
		return fmt.Errorf("server mode: %w", err)
	}
	verifier := tracker.NewVerifier(deps.Ledger, deps.Market, svc, a.cfg.Ledger.CatalogType, a.logger)

	a.startHTTPServer(ctx, g, deps, svc, nil, verifier)

	return g.Wait()
}

// FullMode runs every subsystem: poller, HTTP API, WebSocket feed, deal
// alerts, and the retention sweep.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	svc, err := a.buildService(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	poller := a.buildPoller(deps, svc)
	verifier := tracker.NewVerifier(deps.Ledger, deps.Market, svc, a.cfg.Ledger.CatalogType, a.logger)

	g.Go(func() error {
		return poller.RunLoop(ctx)
	})
	a.startRetentionSweep(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc, poller, verifier)
	}

	return g.Wait()
}

// buildService constructs the tracker service and warms its book from the
// durable store.
func (a *App) buildService(ctx context.Context, deps *Dependencies) (*tracker.Service, error) {
	book := tracker.NewBook(tracker.BookCaps{
		Active:   a.cfg.Tracker.ActiveCap,
		Seen:     a.cfg.Tracker.SeenCap,
		Sold:     a.cfg.Tracker.SoldCap,
		Unlisted: a.cfg.Tracker.UnlistedCap,
	})

	svc := tracker.NewService(book, deps.Listings, deps.Oracle, tracker.ServiceOptions{
		Sales:      deps.Sales,
		Bus:        deps.Bus,
		Transfers:  deps.Market,
		Alerter:    deps.Notifier,
		Audit:      deps.Audit,
		AlertScore: decimal.NewFromFloat(a.cfg.Tracker.DealAlertScore),
	}, a.logger)

	warmSince := time.Now().UTC().AddDate(0, 0, -a.cfg.Tracker.WarmStartDays)
	if err := svc.Init(ctx, warmSince); err != nil {
		return nil, fmt.Errorf("warm book: %w", err)
	}
	return svc, nil
}

// buildPoller constructs the ledger poller. The raw event archiver is only
// attached when the configuration asks for it.
func (a *App) buildPoller(deps *Dependencies, svc *tracker.Service) *tracker.Poller {
	var archiver domain.Archiver
	if a.cfg.S3.ArchiveRawEvents && deps.Archiver != nil {
		archiver = deps.Archiver
	}
	return tracker.NewPoller(tracker.PollerConfig{
		Interval:             a.cfg.Ledger.PollInterval.Duration,
		WindowSize:           a.cfg.Ledger.WindowSize,
		StartupLookback:      a.cfg.Ledger.StartupLookback,
		ListingCreatedType:   a.cfg.Ledger.ListingCreatedType,
		ListingCompletedType: a.cfg.Ledger.ListingCompletedType,
		ListingRemovedType:   a.cfg.Ledger.ListingRemovedType,
		CatalogType:          a.cfg.Ledger.CatalogType,
	}, deps.Ledger, svc, deps.Oracle, deps.Market, deps.Cursor, deps.Locks, archiver, a.logger)
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to the
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	svc *tracker.Service,
	poller *tracker.Poller,
	verifier *tracker.Verifier,
) {
	hub := ws.NewHub(deps.Bus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(svc, poller, a.cfg.Mode),
		Listings: handler.NewListingsHandler(svc),
		Verify:   handler.NewVerifyHandler(verifier),
		Admin:    handler.NewAdminHandler(svc),
		Hub:      hub,
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchivesHandler(deps.BlobReader)
	}

	srv := server.New(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		APIKeyHash:  a.cfg.Server.APIKeyHash,
	}, handlers, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startRetentionSweep runs the daily archive of aged terminal listings when
// both object storage and a retention window are configured.
func (a *App) startRetentionSweep(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil || a.cfg.Tracker.RetentionDays <= 0 {
		return
	}
	retention := time.Duration(a.cfg.Tracker.RetentionDays) * 24 * time.Hour

	g.Go(func() error {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				cutoff := time.Now().UTC().Add(-retention)
				archived, err := deps.Archiver.ArchiveListings(ctx, cutoff)
				if err != nil {
					a.logger.ErrorContext(ctx, "retention sweep failed",
						slog.String("error", err.Error()))
					continue
				}
				if archived > 0 {
					a.logger.InfoContext(ctx, "retention sweep archived listings",
						slog.Int64("archived", archived),
						slog.Time("cutoff", cutoff))
				}
			}
		}
	})
}
