package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/server"
	"github.com/alanyoungcy/marketledger/internal/server/handler"
	"github.com/alanyoungcy/marketledger/internal/server/ws"
	"github.com/alanyoungcy/marketledger/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP API and the WebSocket event feed.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// ArchiveMode archives every eligible settled market once and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	svc, err := a.archiveService(deps)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	n, err := svc.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int("archived", n))
	return nil
}

// FullMode serves the API and, when archive.enabled is set, archives settled
// markets on the configured cron schedule.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)

	if a.cfg.Archive.Enabled {
		svc, err := a.archiveService(deps)
		if err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
		g.Go(func() error {
			return a.runArchiveSchedule(ctx, svc)
		})
	}

	return g.Wait()
}

// MigrateMode only applies schema migrations, which Wire has already done.
func (a *App) MigrateMode(ctx context.Context, _ *Dependencies) error {
	a.logger.InfoContext(ctx, "migrations applied",
		slog.String("driver", a.cfg.Database.Driver),
	)
	return nil
}

func (a *App) ledgerService(deps *Dependencies) *service.LedgerService {
	ledger := service.NewLedgerService(deps.Store, deps.SignalBus, deps.MarketCache, a.logger)
	if deps.Notifier != nil {
		ledger = ledger.WithNotifier(deps.Notifier)
	}
	return ledger
}

func (a *App) archiveService(deps *Dependencies) (*service.ArchiveService, error) {
	if deps.Archiver == nil {
		return nil, errors.New("archiver not configured (enable s3)")
	}
	return service.NewArchiveService(deps.Store, deps.Archiver, deps.LockManager, service.ArchiveConfig{
		MinAge:    a.cfg.Archive.MinAge.Duration,
		BatchSize: a.cfg.Archive.BatchSize,
		LockTTL:   a.cfg.Archive.LockTTL.Duration,
	}, a.logger), nil
}

// runArchiveSchedule runs svc on the archive cron until ctx is cancelled. A
// failed run is logged and retried on the next tick.
func (a *App) runArchiveSchedule(ctx context.Context, svc *service.ArchiveService) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(a.cfg.Archive.Cron, func() {
		n, err := svc.RunOnce(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "scheduled archive failed", slog.String("error", err.Error()))
			return
		}
		a.logger.InfoContext(ctx, "scheduled archive complete", slog.Int("archived", n))
	})
	if err != nil {
		return fmt.Errorf("archive schedule %q: %w", a.cfg.Archive.Cron, err)
	}

	a.logger.InfoContext(ctx, "archive schedule started", slog.String("cron", a.cfg.Archive.Cron))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// startHTTPServer builds the API server and WebSocket hub and runs them on g
// until ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	ledger := a.ledgerService(deps)
	rewards := service.NewRewardService(ledger, a.cfg.Ledger.RewardAmount)

	var verifier *auth.Verifier
	if a.cfg.Server.RequireSignatures {
		verifier = auth.NewVerifier(a.cfg.Server.SignatureMaxSkew.Duration)
		if deps.NonceStore != nil {
			verifier.WithNonceStore(deps.NonceStore)
		}
	} else {
		a.logger.WarnContext(ctx, "request signatures disabled; trusting the address header")
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{AllowedOrigins: a.cfg.Server.CORSOrigins})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Verifier:    verifier,
		RateLimiter: deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:    handler.NewHealthHandler(deps.Health, a.logger),
		Markets:   handler.NewMarketHandler(ledger, a.logger),
		Trades:    handler.NewTradeHandler(ledger, a.logger),
		Positions: handler.NewPositionHandler(ledger, a.logger),
		Accounts:  handler.NewAccountHandler(ledger, rewards, a.logger),
		Events:    handler.NewEventHandler(ledger, a.logger),
	}, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
