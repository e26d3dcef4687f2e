package engine

import (
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const (
	// ClaimCooldown is the minimum gap between two daily reward claims.
	ClaimCooldown = 24 * time.Hour
	// DefaultRewardAmount is 100 tokens at 9 decimals.
	DefaultRewardAmount uint64 = 100_000_000_000
)

// ClaimReward records a reward claim at now. A user without a stored state
// may always claim.
func ClaimReward(state *domain.ClaimState, exists bool, user string, now time.Time) error {
	ts := now.Unix()
	if exists && ts-state.LastClaim < int64(ClaimCooldown/time.Second) {
		return domain.ErrClaimTooSoon
	}
	*state = domain.ClaimState{User: user, LastClaim: ts}
	return nil
}

// NextClaimAt returns when the user may claim again.
func NextClaimAt(state domain.ClaimState) time.Time {
	return time.Unix(state.LastClaim, 0).Add(ClaimCooldown)
}
