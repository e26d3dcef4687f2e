package engine

import (
	"fmt"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// Payout computes what pos is owed by a terminal market. Cancelled markets
// refund pro rata against the remaining collateral; resolved markets redeem
// winning shares at a flat shares/10.
func Payout(m *domain.Market, pos *domain.Position) (uint64, error) {
	if !m.Resolved() {
		return 0, domain.ErrMarketNotResolved
	}
	if pos.Claimed {
		return 0, domain.ErrAlreadyClaimed
	}

	if m.Outcome.IsCancelled() {
		total, err := TradedShares(m)
		if err != nil {
			return 0, err
		}
		if total == 0 {
			return 0, domain.ErrNoSharesInMarket
		}
		return mulDiv(pos.Shares, m.CollateralBalance, total)
	}

	winner, _ := m.Outcome.Winner()
	if int(pos.OptionIndex) != winner {
		return 0, domain.ErrNotWinner
	}
	return pos.Shares / PaymentUnitDivisor, nil
}

// Settle marks pos claimed and releases its payout from the market's
// collateral. A refunded position's shares also leave the pool so later
// refunds divide the remaining collateral among the remaining shares.
func Settle(m *domain.Market, pos *domain.Position) (uint64, error) {
	amount, err := Payout(m, pos)
	if err != nil {
		return 0, err
	}
	if amount > m.CollateralBalance {
		// The escrow holds exactly the collateral, so it cannot fund the payout.
		return 0, fmt.Errorf("engine: payout %d exceeds collateral %d: %w",
			amount, m.CollateralBalance, domain.ErrInsufficientBalance)
	}

	if m.Outcome.IsCancelled() {
		opt := m.Options.Get(int(pos.OptionIndex))
		if opt == nil || opt.Shares < pos.Shares {
			return 0, domain.ErrInvalidOption
		}
		opt.Shares -= pos.Shares
	}
	m.CollateralBalance -= amount
	pos.Claimed = true
	return amount, nil
}
