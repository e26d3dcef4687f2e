package engine

import (
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// OpenPosition returns the position created by a user's first trade.
func OpenPosition(marketID, user string, index int, now time.Time) domain.Position {
	return domain.Position{
		MarketID:    marketID,
		User:        user,
		OptionIndex: uint8(index),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CheckTrade rejects trades against a settled position or a different option
// than the one the position was opened on.
func CheckTrade(pos *domain.Position, index int) error {
	if pos.Claimed {
		return domain.ErrAlreadyClaimed
	}
	if int(pos.OptionIndex) != index {
		return domain.ErrDifferentOptionBet
	}
	return nil
}

// Credit adds bought shares to pos.
func Credit(pos *domain.Position, shares uint64, now time.Time) error {
	next, ok := addU64(pos.Shares, shares)
	if !ok {
		return domain.ErrOverflow
	}
	pos.Shares = next
	pos.UpdatedAt = now
	return nil
}
