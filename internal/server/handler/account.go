package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketledger/internal/service"
)

// BalanceService reads token balances.
type BalanceService interface {
	Balance(ctx context.Context, account string) (uint64, error)
}

// RewardService mints the daily reward.
type RewardService interface {
	Claim(ctx context.Context, user string) (service.RewardResult, error)
}

// AccountHandler serves balance and reward endpoints.
type AccountHandler struct {
	balances BalanceService
	rewards  RewardService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(balances BalanceService, rewards RewardService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{balances: balances, rewards: rewards, logger: logger}
}

type balanceResponse struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// Balance returns an account's token balance.
// GET /api/balances/{account}
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	amount, err := h.balances.Balance(r.Context(), account)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Account: account, Amount: amount})
}

// ClaimReward mints the daily reward to the caller.
// POST /api/rewards/claim
func (h *AccountHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	res, err := h.rewards.Claim(r.Context(), user)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
