package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RankingDependencies reads the leaderboard.
type RankingDependencies interface {
	TopN(ctx context.Context, n int) ([]Entry, error)
	Rank(ctx context.Context, playerID string) (Entry, error)
}

// RankingHandler serves the leaderboard and single-player ranks.
type RankingHandler struct {
	deps     RankingDependencies
	maxLimit int
}

// NewRankingHandler creates a ranking handler. maxLimit caps ?limit.
func NewRankingHandler(deps RankingDependencies, maxLimit int) *RankingHandler {
	return &RankingHandler{deps: deps, maxLimit: maxLimit}
}

// HandleLeaderboard handles GET /leaderboard?limit=N. The limit is required.
func (h *RankingHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	n, code, ok := parseLimit(r, 0, h.maxLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, code, NewKind(op, ErrBadRequest))
		return
	}
	rows, err := h.deps.TopN(r.Context(), n)
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	if rows == nil {
		rows = []Entry{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleRank handles GET /rank/{id}.
func (h *RankingHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_rank"
	row, err := h.deps.Rank(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
