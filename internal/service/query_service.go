package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/engine"
)

// MarketView is a market together with its derived read-side fields.
type MarketView struct {
	domain.Market
	Type          domain.MarketType `json:"type"`
	Status        string            `json:"status"`
	TradedShares  uint64            `json:"traded_shares"`
	ImpliedPrices []decimal.Decimal `json:"implied_prices"`
}

// QuoteRequest previews a trade. Side is "buy" or "sell"; sells price the
// position of User.
type QuoteRequest struct {
	Side        string
	OptionIndex int
	Shares      uint64
	User        string
}

// Quote is a read-only trade preview.
type Quote struct {
	MarketID        string            `json:"market_id"`
	Buy             *engine.BuyQuote  `json:"buy,omitempty"`
	Sell            *engine.SellQuote `json:"sell,omitempty"`
	PotentialPayout uint64            `json:"potential_payout"`
	ImpliedPrices   []decimal.Decimal `json:"implied_prices"`
}

// View derives the read-side fields of m.
func View(m domain.Market) MarketView {
	traded, _ := engine.TradedShares(&m)
	return MarketView{
		Market:        m,
		Type:          m.Type(),
		Status:        m.Outcome.Status(),
		TradedShares:  traded,
		ImpliedPrices: engine.ImpliedPrices(&m),
	}
}

// GetMarket returns a market, consulting the cache first and back-filling it
// on a miss.
func (s *LedgerService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("service: get market %q: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "ledger_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns markets matching f.
func (s *LedgerService) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	markets, err := s.store.ListMarkets(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("service: list markets: %w", err)
	}
	return markets, nil
}

// GetPosition returns the user's position in a market.
func (s *LedgerService) GetPosition(ctx context.Context, marketID, user string) (domain.Position, error) {
	p, err := s.store.GetPosition(ctx, marketID, user)
	if err != nil {
		return domain.Position{}, fmt.Errorf("service: get position: %w", err)
	}
	return p, nil
}

// ListPositions returns every position held by user.
func (s *LedgerService) ListPositions(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error) {
	ps, err := s.store.ListPositions(ctx, user, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list positions: %w", err)
	}
	return ps, nil
}

// Balance returns an account's token balance.
func (s *LedgerService) Balance(ctx context.Context, account string) (uint64, error) {
	b, err := s.store.GetBalance(ctx, account)
	if err != nil {
		return 0, fmt.Errorf("service: balance: %w", err)
	}
	return b, nil
}

// Counter returns how many markets authority has created. An authority that
// never created one reports zero.
func (s *LedgerService) Counter(ctx context.Context, authority string) (domain.Counter, error) {
	c, err := s.store.GetCounter(ctx, authority)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Counter{Authority: authority}, nil
	}
	if err != nil {
		return domain.Counter{}, fmt.Errorf("service: counter: %w", err)
	}
	return c, nil
}

// ListAudit returns audit entries, newest first.
func (s *LedgerService) ListAudit(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	entries, err := s.store.ListAudit(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("service: list audit: %w", err)
	}
	return entries, nil
}

// Quote prices a trade against the current market state without changing it.
func (s *LedgerService) Quote(ctx context.Context, marketID string, req QuoteRequest) (Quote, error) {
	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return Quote{}, fmt.Errorf("service: quote: %w", err)
	}

	q := Quote{MarketID: marketID, ImpliedPrices: engine.ImpliedPrices(&m)}
	switch req.Side {
	case "buy":
		bq, err := engine.QuoteBuy(&m, req.OptionIndex, req.Shares)
		if err != nil {
			return Quote{}, fmt.Errorf("service: quote buy: %w", err)
		}
		q.Buy = &bq
		q.PotentialPayout = engine.PotentialPayout(req.Shares)
	case "sell":
		pos, err := s.store.GetPosition(ctx, marketID, req.User)
		var posp *domain.Position
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return Quote{}, fmt.Errorf("service: quote sell: %w", err)
		default:
			posp = &pos
		}
		sq, err := engine.QuoteSell(&m, posp, req.Shares)
		if err != nil {
			return Quote{}, fmt.Errorf("service: quote sell: %w", err)
		}
		q.Sell = &sq
	default:
		return Quote{}, fmt.Errorf("service: quote side %q: %w", req.Side, domain.ErrInvalidRequest)
	}
	return q, nil
}

// RecentEvents replays committed ledger events after lastID ("0" for the
// oldest retained). It returns nothing when no signal bus is configured.
func (s *LedgerService) RecentEvents(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if s.pub.bus == nil {
		return nil, nil
	}
	msgs, err := s.pub.bus.StreamRead(ctx, domain.EventStream, lastID, count)
	if err != nil {
		return nil, fmt.Errorf("service: recent events: %w", err)
	}
	return msgs, nil
}
