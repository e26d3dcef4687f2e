package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketledger/internal/auth"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/engine"
	"github.com/alanyoungcy/marketledger/internal/metrics"
)

// RewardResult reports a daily reward mint.
type RewardResult struct {
	Amount      uint64    `json:"amount"`
	Balance     uint64    `json:"balance"`
	NextClaimAt time.Time `json:"next_claim_at"`
}

// RewardService mints the daily faucet reward, at most once per user per
// cooldown window.
type RewardService struct {
	ledger *LedgerService
	amount uint64
	minter string
}

// NewRewardService creates a RewardService that shares ledger's store, clock
// and publisher. A zero amount uses engine.DefaultRewardAmount.
func NewRewardService(ledger *LedgerService, amount uint64) *RewardService {
	if amount == 0 {
		amount = engine.DefaultRewardAmount
	}
	return &RewardService{ledger: ledger, amount: amount, minter: auth.MintAuthority()}
}

// Claim records the claim time and mints the reward to user.
func (r *RewardService) Claim(ctx context.Context, user string) (RewardResult, error) {
	s := r.ledger
	var res RewardResult
	err := s.run(ctx, "claim_daily_reward", func(tx domain.LedgerTx) ([]domain.LedgerEvent, error) {
		now := s.now()
		state, err := tx.LockClaimState(ctx, user)
		exists := err == nil
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("service: lock claim state: %w", err)
		}

		if err := engine.ClaimReward(&state, exists, user, now); err != nil {
			return nil, err
		}
		if err := tx.SaveClaimState(ctx, state, !exists); err != nil {
			return nil, fmt.Errorf("service: save claim state: %w", err)
		}

		custodian := tx.Custodian()
		if err := custodian.Mint(ctx, r.minter, user, r.amount); err != nil {
			return nil, fmt.Errorf("service: mint reward: %w", err)
		}
		balance, err := custodian.Balance(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("service: balance: %w", err)
		}

		ev := newEvent(domain.EventRewardClaimed, "", now)
		ev.User = user
		ev.Amount = r.amount
		if err := tx.Audit(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			return nil, fmt.Errorf("service: audit: %w", err)
		}

		res = RewardResult{Amount: r.amount, Balance: balance, NextClaimAt: engine.NextClaimAt(state)}
		return []domain.LedgerEvent{ev}, nil
	})
	if err != nil {
		return RewardResult{}, fmt.Errorf("service: claim reward: %w", err)
	}

	metrics.RecordTransfer("reward", res.Amount)
	s.logger.InfoContext(ctx, "ledger_service: reward claimed",
		slog.String("user", user),
		slog.Uint64("amount", res.Amount),
	)
	return res, nil
}
