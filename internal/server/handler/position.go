package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	GetPosition(ctx context.Context, marketID, user string) (domain.Position, error)
	ListPositions(ctx context.Context, user string, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// GetPosition returns one user's position in a market.
// GET /api/markets/{id}/positions/{user}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	p, err := h.positions.GetPosition(r.Context(), r.PathValue("id"), r.PathValue("user"))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPositions returns every position held by a user, defaulting to the
// caller.
// GET /api/positions?user=0x...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" {
		user, _ = callerID(r)
	}
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter required")
		return
	}

	positions, err := h.positions.ListPositions(r.Context(), user, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}
