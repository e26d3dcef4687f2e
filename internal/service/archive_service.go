package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/metrics"
)

const archiveLockKey = "archive:markets"

// ArchiveConfig tunes the archiver. Markets are archived once they have been
// terminal and unchanged for at least MinAge. A market changed by a later
// claim is archived again after another MinAge.
type ArchiveConfig struct {
	MinAge    time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// ArchiveService snapshots settled markets and their positions to blob
// storage.
type ArchiveService struct {
	store    domain.LedgerReader
	archiver domain.Archiver
	locks    domain.LockManager
	cfg      ArchiveConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewArchiveService creates an ArchiveService. locks may be nil when only one
// archiver runs.
func NewArchiveService(
	store domain.LedgerReader,
	archiver domain.Archiver,
	locks domain.LockManager,
	cfg ArchiveConfig,
	logger *slog.Logger,
) *ArchiveService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &ArchiveService{
		store:    store,
		archiver: archiver,
		locks:    locks,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// WithClock replaces the wall clock used for the MinAge cutoff.
func (a *ArchiveService) WithClock(now func() time.Time) *ArchiveService {
	a.now = now
	return a
}

// RunOnce archives every eligible market and returns how many snapshots were
// written. A run that finds the lock held by another process is skipped.
func (a *ArchiveService) RunOnce(ctx context.Context) (int, error) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archiver: another run holds the lock")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("archiver: acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := a.now().Add(-a.cfg.MinAge)
	written := 0
	for offset := 0; ; offset += a.cfg.BatchSize {
		markets, err := a.store.ListMarkets(ctx, domain.MarketFilter{
			Status:   "terminal",
			ListOpts: domain.ListOpts{Limit: a.cfg.BatchSize, Offset: offset},
		})
		if err != nil {
			return written, fmt.Errorf("archiver: list markets: %w", err)
		}

		for _, m := range markets {
			if m.UpdatedAt.After(cutoff) {
				continue
			}
			ok, err := a.archive(ctx, m)
			if err != nil {
				return written, err
			}
			if ok {
				written++
			}
		}

		if len(markets) < a.cfg.BatchSize {
			break
		}
	}

	a.logger.InfoContext(ctx, "archiver: run complete", slog.Int("written", written))
	return written, nil
}

func (a *ArchiveService) archive(ctx context.Context, m domain.Market) (bool, error) {
	positions, err := a.store.ListMarketPositions(ctx, m.ID)
	if err != nil {
		return false, fmt.Errorf("archiver: positions of %s: %w", m.ID, err)
	}
	ok, err := a.archiver.ArchiveMarket(ctx, domain.MarketSnapshot{Market: m, Positions: positions})
	if err != nil {
		return false, fmt.Errorf("archiver: %w", err)
	}
	if ok {
		metrics.MarketsArchived.Inc()
		a.logger.DebugContext(ctx, "archiver: market archived",
			slog.String("market_id", m.ID),
			slog.Int("positions", len(positions)),
		)
	}
	return ok, nil
}
