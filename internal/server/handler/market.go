package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/service"
)

// MarketService defines the methods that the market handler requires from the
// service layer.
type MarketService interface {
	CreateMarket(ctx context.Context, authority string, req service.CreateMarketRequest) (domain.Market, error)
	AddOption(ctx context.Context, caller, marketID, name string) (domain.Market, error)
	SetOptionActive(ctx context.Context, caller, marketID string, index int, active bool) (domain.Market, error)
	Resolve(ctx context.Context, caller, marketID string, winner int) (domain.Market, error)
	Cancel(ctx context.Context, caller, marketID string) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error)
	Quote(ctx context.Context, marketID string, req service.QuoteRequest) (service.Quote, error)
	Counter(ctx context.Context, authority string) (domain.Counter, error)
}

// MarketHandler serves market lifecycle and market read endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

type listMarketsResponse struct {
	Markets []service.MarketView `json:"markets"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// CreateMarket opens a market owned by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	authority, ok := caller(w, r)
	if !ok {
		return
	}
	var req service.CreateMarketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	m, err := h.markets.CreateMarket(r.Context(), authority, req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, service.View(m))
}

// ListMarkets returns markets, optionally filtered by authority and status.
// GET /api/markets?authority=0x...&status=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	q := r.URL.Query()
	status := q.Get("status")
	switch status {
	case "", "open", "resolved", "cancelled", "terminal":
	default:
		writeError(w, http.StatusBadRequest, "status must be open, resolved, cancelled or terminal")
		return
	}

	markets, err := h.markets.ListMarkets(r.Context(), domain.MarketFilter{
		Authority: q.Get("authority"),
		Status:    status,
		ListOpts:  opts,
	})
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	views := make([]service.MarketView, len(markets))
	for i, m := range markets {
		views[i] = service.View(m)
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: views, Limit: opts.Limit, Offset: opts.Offset})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	m, err := h.markets.GetMarket(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.View(m))
}

type addOptionRequest struct {
	Name string `json:"name"`
}

// AddOption appends an option.
// POST /api/markets/{id}/options
func (h *MarketHandler) AddOption(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req addOptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	m, err := h.markets.AddOption(r.Context(), who, r.PathValue("id"), req.Name)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.View(m))
}

type setOptionRequest struct {
	Active bool `json:"active"`
}

// SetOptionActive toggles whether an option accepts buys.
// PUT /api/markets/{id}/options/{index}
func (h *MarketHandler) SetOptionActive(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	index, err := pathInt(r, "index")
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	var req setOptionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	m, err := h.markets.SetOptionActive(r.Context(), who, r.PathValue("id"), index, req.Active)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.View(m))
}

type resolveRequest struct {
	Winner *int `json:"winner"`
}

// Resolve declares the winning option.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if req.Winner == nil {
		writeError(w, http.StatusBadRequest, "winner is required")
		return
	}
	m, err := h.markets.Resolve(r.Context(), who, r.PathValue("id"), *req.Winner)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.View(m))
}

// Cancel cancels an open market.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	m, err := h.markets.Cancel(r.Context(), who, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, service.View(m))
}

// Quote previews a buy or sell without changing the market.
// GET /api/markets/{id}/quote?side=buy&option=0&shares=10
// GET /api/markets/{id}/quote?side=sell&shares=10&user=0x...
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	shares, err := strconv.ParseUint(q.Get("shares"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "shares must be a non-negative integer")
		return
	}
	req := service.QuoteRequest{Side: q.Get("side"), Shares: shares, User: q.Get("user")}
	if v := q.Get("option"); v != "" {
		idx, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "option must be an integer")
			return
		}
		req.OptionIndex = idx
	}
	if req.User == "" {
		req.User, _ = callerID(r)
	}

	quote, err := h.markets.Quote(r.Context(), r.PathValue("id"), req)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

// Counter returns how many markets an authority has created.
// GET /api/authorities/{authority}/counter
func (h *MarketHandler) Counter(w http.ResponseWriter, r *http.Request) {
	c, err := h.markets.Counter(r.Context(), r.PathValue("authority"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
