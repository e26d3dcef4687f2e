package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketledger/internal/service"
)

// TradeService defines the trading and settlement methods the trade handler
// requires.
type TradeService interface {
	Buy(ctx context.Context, user, marketID string, index int, shares uint64) (service.BuyResult, error)
	Sell(ctx context.Context, user, marketID string, shares uint64) (service.SellResult, error)
	ClaimPayout(ctx context.Context, user, marketID string) (service.ClaimResult, error)
}

// TradeHandler serves buy, sell and claim endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{trades: trades, logger: logger}
}

type buyRequest struct {
	OptionIndex *int   `json:"option_index"`
	Shares      uint64 `json:"shares"`
}

type sellRequest struct {
	Shares uint64 `json:"shares"`
}

// Buy acquires shares for the caller.
// POST /api/markets/{id}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if req.OptionIndex == nil {
		writeError(w, http.StatusBadRequest, "option_index is required")
		return
	}
	res, err := h.trades.Buy(r.Context(), user, r.PathValue("id"), *req.OptionIndex, req.Shares)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Sell liquidates shares of the caller's position.
// POST /api/markets/{id}/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	var req sellRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	res, err := h.trades.Sell(r.Context(), user, r.PathValue("id"), req.Shares)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Claim settles the caller's position in a terminal market.
// POST /api/markets/{id}/claim
func (h *TradeHandler) Claim(w http.ResponseWriter, r *http.Request) {
	user, ok := caller(w, r)
	if !ok {
		return
	}
	res, err := h.trades.ClaimPayout(r.Context(), user, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
