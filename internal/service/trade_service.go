package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/engine"
	"github.com/alanyoungcy/marketledger/internal/metrics"
)

// BuyResult is the committed state after a buy.
type BuyResult struct {
	Quote    engine.BuyQuote `json:"quote"`
	Market   domain.Market   `json:"market"`
	Position domain.Position `json:"position"`
}

// SellResult is the committed state after a sell.
type SellResult struct {
	Quote    engine.SellQuote `json:"quote"`
	Market   domain.Market    `json:"market"`
	Position domain.Position  `json:"position"`
}

// ClaimResult reports a settled position and the tokens released to it.
type ClaimResult struct {
	Amount   uint64          `json:"amount"`
	Market   domain.Market   `json:"market"`
	Position domain.Position `json:"position"`
}

// Buy acquires shares of one option and moves the cost from the user's
// balance into the market escrow.
func (s *LedgerService) Buy(ctx context.Context, user, marketID string, index int, shares uint64) (BuyResult, error) {
	var res BuyResult
	err := s.run(ctx, "buy_shares", func(tx domain.LedgerTx) ([]domain.LedgerEvent, error) {
		now := s.now()
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return nil, fmt.Errorf("service: lock market: %w", err)
		}

		pos, err := tx.LockPosition(ctx, marketID, user)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			pos = engine.OpenPosition(marketID, user, index, now)
		case err != nil:
			return nil, fmt.Errorf("service: lock position: %w", err)
		default:
			if err := engine.CheckTrade(&pos, index); err != nil {
				return nil, err
			}
		}

		q, err := engine.Buy(&m, index, shares)
		if err != nil {
			return nil, err
		}
		if err := engine.Credit(&pos, shares, now); err != nil {
			return nil, err
		}
		m.UpdatedAt = now

		if err := tx.Custodian().Transfer(ctx, user, m.EscrowAccount(), q.TokensNeeded); err != nil {
			return nil, fmt.Errorf("service: collect tokens: %w", err)
		}
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return nil, fmt.Errorf("service: update market: %w", err)
		}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("service: save position: %w", err)
		}

		ev := newEvent(domain.EventBuy, marketID, now)
		ev.User = user
		ev.OptionIndex = index
		ev.Shares = shares
		ev.Amount = q.TokensNeeded
		if err := tx.Audit(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			return nil, fmt.Errorf("service: audit: %w", err)
		}

		res = BuyResult{Quote: q, Market: m, Position: pos}
		return []domain.LedgerEvent{ev}, nil
	})
	if err != nil {
		return BuyResult{}, fmt.Errorf("service: buy shares: %w", err)
	}

	metrics.RecordTrade("buy", shares, res.Quote.TokensNeeded)
	s.logger.InfoContext(ctx, "ledger_service: shares bought",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.Int("option", index),
		slog.Uint64("shares", shares),
		slog.Uint64("tokens", res.Quote.TokensNeeded),
	)
	return res, nil
}

// Sell liquidates shares of the user's position and returns tokens from the
// market escrow. A sell whose payout rounds to zero tokens still burns the
// shares.
func (s *LedgerService) Sell(ctx context.Context, user, marketID string, shares uint64) (SellResult, error) {
	var res SellResult
	err := s.run(ctx, "sell_shares", func(tx domain.LedgerTx) ([]domain.LedgerEvent, error) {
		now := s.now()
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return nil, fmt.Errorf("service: lock market: %w", err)
		}

		var posp *domain.Position
		pos, err := tx.LockPosition(ctx, marketID, user)
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("service: lock position: %w", err)
		default:
			posp = &pos
		}

		q, err := engine.Sell(&m, posp, shares)
		if err != nil {
			return nil, err
		}
		pos.UpdatedAt = now
		m.UpdatedAt = now

		if err := tx.UpdateMarket(ctx, m); err != nil {
			return nil, fmt.Errorf("service: update market: %w", err)
		}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("service: save position: %w", err)
		}
		if err := tx.Custodian().Transfer(ctx, m.EscrowAccount(), user, q.TokensToReturn); err != nil {
			return nil, fmt.Errorf("service: return tokens: %w", err)
		}

		ev := newEvent(domain.EventSell, marketID, now)
		ev.User = user
		ev.OptionIndex = q.OptionIndex
		ev.Shares = shares
		ev.Amount = q.TokensToReturn
		if err := tx.Audit(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			return nil, fmt.Errorf("service: audit: %w", err)
		}

		res = SellResult{Quote: q, Market: m, Position: pos}
		return []domain.LedgerEvent{ev}, nil
	})
	if err != nil {
		return SellResult{}, fmt.Errorf("service: sell shares: %w", err)
	}

	metrics.RecordTrade("sell", shares, res.Quote.TokensToReturn)
	s.logger.InfoContext(ctx, "ledger_service: shares sold",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.Uint64("shares", shares),
		slog.Uint64("tokens", res.Quote.TokensToReturn),
	)
	return res, nil
}

// ClaimPayout settles the user's position in a terminal market. The position
// is marked claimed in the same transaction that releases the tokens.
func (s *LedgerService) ClaimPayout(ctx context.Context, user, marketID string) (ClaimResult, error) {
	var res ClaimResult
	err := s.run(ctx, "claim_payout", func(tx domain.LedgerTx) ([]domain.LedgerEvent, error) {
		now := s.now()
		m, err := tx.LockMarket(ctx, marketID)
		if err != nil {
			return nil, fmt.Errorf("service: lock market: %w", err)
		}
		pos, err := tx.LockPosition(ctx, marketID, user)
		if err != nil {
			return nil, fmt.Errorf("service: lock position: %w", err)
		}

		amount, err := engine.Settle(&m, &pos)
		if err != nil {
			return nil, err
		}
		pos.UpdatedAt = now
		m.UpdatedAt = now

		if err := tx.SavePosition(ctx, pos); err != nil {
			return nil, fmt.Errorf("service: save position: %w", err)
		}
		if err := tx.UpdateMarket(ctx, m); err != nil {
			return nil, fmt.Errorf("service: update market: %w", err)
		}
		if err := tx.Custodian().Transfer(ctx, m.EscrowAccount(), user, amount); err != nil {
			return nil, fmt.Errorf("service: pay out: %w", err)
		}

		ev := newEvent(domain.EventPayoutClaimed, marketID, now)
		ev.User = user
		ev.OptionIndex = int(pos.OptionIndex)
		ev.Shares = pos.Shares
		ev.Amount = amount
		ev.Outcome = m.Outcome.String()
		if err := tx.Audit(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			return nil, fmt.Errorf("service: audit: %w", err)
		}

		res = ClaimResult{Amount: amount, Market: m, Position: pos}
		return []domain.LedgerEvent{ev}, nil
	})
	if err != nil {
		return ClaimResult{}, fmt.Errorf("service: claim payout: %w", err)
	}

	metrics.RecordTransfer("payout", res.Amount)
	s.logger.InfoContext(ctx, "ledger_service: payout claimed",
		slog.String("market_id", marketID),
		slog.String("user", user),
		slog.Uint64("amount", res.Amount),
	)
	return res, nil
}
