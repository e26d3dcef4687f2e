// Package service runs ledger operations. Each mutation executes inside one
// store transaction: records are locked, the engine applies the rule, the
// custodian moves tokens and an audit row is written. Events are published
// only after the transaction commits.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/engine"
	"github.com/alanyoungcy/marketledger/internal/metrics"
)

// CreateMarketRequest opens a market. A nil Index takes the first free index
// at or after the authority's current market count.
type CreateMarketRequest struct {
	Index       *uint16  `json:"index,omitempty"`
	Question    string   `json:"question"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

// LedgerService executes market, trade and claim operations.
type LedgerService struct {
	store  domain.LedgerStore
	cache  domain.MarketCache
	pub    *publisher
	now    func() time.Time
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService. bus and cache may be nil.
func NewLedgerService(
	store domain.LedgerStore,
	bus domain.SignalBus,
	cache domain.MarketCache,
	logger *slog.Logger,
) *LedgerService {
	logger = logger.With(slog.String("component", "ledger_service"))
	return &LedgerService{
		store:  store,
		cache:  cache,
		pub:    &publisher{bus: bus, cache: cache, logger: logger},
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the wall clock used to stamp records and enforce the
// reward cooldown.
func (s *LedgerService) WithClock(now func() time.Time) *LedgerService {
	s.now = now
	return s
}

// WithNotifier sends operator alerts for resolved and cancelled markets.
func (s *LedgerService) WithNotifier(n Notifier) *LedgerService {
	s.pub.notifier = n
	return s
}

// run executes fn in a store transaction, records the outcome and publishes
// the returned events after commit.
func (s *LedgerService) run(ctx context.Context, op string, fn func(tx domain.LedgerTx) ([]domain.LedgerEvent, error)) error {
	start := time.Now()
	var events []domain.LedgerEvent
	err := s.store.InTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		events, err = fn(tx)
		return err
	})
	metrics.RecordOperation(op, resultLabel(err), time.Since(start))
	if err != nil {
		s.logger.DebugContext(ctx, "ledger_service: operation rejected",
			slog.String("operation", op),
			slog.String("code", domain.CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.pub.publish(ctx, events...)
	return nil
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

// nextFreeIndex returns the first index at or after from that authority has
// no market under.
func nextFreeIndex(ctx context.Context, tx domain.LedgerTx, authority string, from uint16) (uint16, error) {
	for index := from; ; index++ {
		_, err := tx.LockMarket(ctx, auth.MarketID(authority, index))
		if errors.Is(err, domain.ErrNotFound) {
			return index, nil
		}
		if err != nil {
			return 0, fmt.Errorf("service: lookup market index %d: %w", index, err)
		}
		if index == math.MaxUint16 {
			return 0, domain.ErrOverflow
		}
	}
}

// CreateMarket opens a market owned by authority and bumps its counter.
func (s *LedgerService) CreateMarket(ctx context.Context, authority string, req CreateMarketRequest) (domain.Market, error) {
	var created domain.Market
	err := s.run(ctx, "create_market", func(tx domain.LedgerTx) ([]domain.LedgerEvent, error) {
		now := s.now()

		counter, err := tx.LockCounter(ctx, authority)
		exists := err == nil
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("service: lock counter: %w", err)
		}

		index := counter.Count
		if req.Index != nil {
			index = *req.Index
		} else {
			// Explicit indexes may already occupy the counter's next slot.
			if index, err = nextFreeIndex(ctx, tx, authority, counter.Count); err != nil {
				return nil, err
			}
		}

		m, err := engine.NewMarket(auth.MarketID(authority, index), engine.CreateParams{
			Authority:   authority,
			Index:       index,
			Question:    req.Question,
			Description: req.Description,
			Options:     req.Options,
		}, now)
		if err != nil {
			return nil, err
		}
		if err := tx.InsertMarket(ctx, m); err != nil {
			return nil, fmt.Errorf("service: insert market: %w", err)
		}

		if err := engine.IncrementCounter(&counter, exists, authority); err != nil {
			return nil, err
		}
		if err := tx.SaveCounter(ctx, counter, !exists); err != nil {
			return nil, fmt.Errorf("service: save counter: %w", err)
		}

		if err := tx.Audit(ctx, string(domain.EventMarketCreated), map[string]any{
			"market_id": m.ID,
			"authority": authority,
			"index":     index,
			"options":   m.Options.Len(),
		}); err != nil {
			return nil, fmt.Errorf("service: audit: %w", err)
		}

		created = m
		ev := newEvent(domain.EventMarketCreated, m.ID, now)
		ev.User = authority
		ev.Outcome = m.Outcome.String()
		return []domain.LedgerEvent{ev}, nil
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: create market: %w", err)
	}

	s.logger.InfoContext(ctx, "ledger_service: market created",
		slog.String("market_id", created.ID),
		slog.String("authority", authority),
		slog.Int("index", int(created.Index)),
		slog.Int("options", created.Options.Len()),
	)
	return created, nil
}

// AddOption appends an option to an open market.
func (s *LedgerService) AddOption(ctx context.Context, caller, marketID, name string) (domain.Market, error) {
	return s.mutateMarket(ctx, "add_option", marketID, func(m *domain.Market, now time.Time) (domain.LedgerEvent, error) {
		if err := engine.AddOption(m, caller, name, now); err != nil {
			return domain.LedgerEvent{}, err
		}
		ev := newEvent(domain.EventOptionAdded, m.ID, now)
		ev.User = caller
		ev.OptionIndex = m.Options.Len() - 1
		return ev, nil
	})
}

// SetOptionActive enables or disables buying an option.
func (s *LedgerService) SetOptionActive(ctx context.Context, caller, marketID string, index int, active bool) (domain.Market, error) {
	return s.mutateMarket(ctx, "set_option_active", marketID, func(m *domain.Market, now time.Time) (domain.LedgerEvent, error) {
		if err := engine.SetOptionActive(m, caller, index, active, now); err != nil {
			return domain.LedgerEvent{}, err
		}
		ev := newEvent(domain.EventOptionToggled, m.ID, now)
		ev.User = caller
		ev.OptionIndex = index
		return ev, nil
	})
}

// Resolve declares the winning option.
func (s *LedgerService) Resolve(ctx context.Context, caller, marketID string, winner int) (domain.Market, error) {
	m, err := s.mutateMarket(ctx, "resolve_market", marketID, func(m *domain.Market, now time.Time) (domain.LedgerEvent, error) {
		if err := engine.Resolve(m, caller, winner, now); err != nil {
			return domain.LedgerEvent{}, err
		}
		ev := newEvent(domain.EventMarketResolved, m.ID, now)
		ev.User = caller
		ev.OptionIndex = winner
		ev.Outcome = m.Outcome.String()
		ev.Amount = m.CollateralBalance
		return ev, nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "ledger_service: market resolved",
			slog.String("market_id", marketID),
			slog.Int("winner", winner),
		)
	}
	return m, err
}

// Cancel cancels the market so positions are refunded pro rata.
func (s *LedgerService) Cancel(ctx context.Context, caller, marketID string) (domain.Market, error) {
	m, err := s.mutateMarket(ctx, "cancel_market", marketID, func(m *domain.Market, now time.Time) (domain.LedgerEvent, error) {
		if err := engine.Cancel(m, caller, now); err != nil {
			return domain.LedgerEvent{}, err
		}
		ev := newEvent(domain.EventMarketCanceled, m.ID, now)
		ev.User = caller
		ev.Outcome = m.Outcome.String()
		ev.Amount = m.CollateralBalance
		return ev, nil
	})
	if err == nil {
		s.logger.InfoContext(ctx, "ledger_service: market cancelled", slog.String("market_id", marketID))
	}
	return m, err
}

// mutateMarket locks one market, applies fn, persists and audits the result.
func (s *LedgerService) mutateMarket(
	ctx context.Context,
	op, marketID string,
	fn func(m *domain.Market, now time.Time) (domain.LedgerEvent, error),
) (domain.Market, error) {
	var out domain.Market
	err := s.run(ctx, op, func(tx domain.LedgerTx) ([]domain.LedgerEvent, error) {
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return nil, fmt.Errorf("service: lock market: %w", err)
		}
		ev, err := fn(&m, s.now())
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return nil, fmt.Errorf("service: update market: %w", err)
		}
		if err := tx.Audit(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			return nil, fmt.Errorf("service: audit: %w", err)
		}
		out = m
		return []domain.LedgerEvent{ev}, nil
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: %s: %w", op, err)
	}
	return out, nil
}

func auditDetail(ev domain.LedgerEvent) map[string]any {
	d := map[string]any{
		"event_id":     ev.ID,
		"market_id":    ev.MarketID,
		"user":         ev.User,
		"option_index": ev.OptionIndex,
	}
	if ev.Shares != 0 {
		d["shares"] = ev.Shares
	}
	if ev.Amount != 0 {
		d["amount"] = ev.Amount
	}
	if ev.Outcome != "" {
		d["outcome"] = ev.Outcome
	}
	return d
}
