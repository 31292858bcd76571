// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/shuttle/internal/adapters/repository"
	service "github.com/okian/shuttle/internal/app"
	"github.com/okian/shuttle/internal/domain/model"
	"github.com/okian/shuttle/internal/domain/types"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	PlayerDependencies
	MatchDependencies
	RankingDependencies
	ExportDependencies
	StatsProvider
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.Entry

// Server wires HTTP routes for the business API.
type Server struct {
	ops     *OpsHandler
	players *PlayersHandler
	matches *MatchesHandler
	ranking *RankingHandler
	export  *ExportHandler
}

// NewServer creates a new API server with all handlers. maxLimit bounds
// leaderboard and history page sizes.
func NewServer(deps Dependencies, maxLimit int) *Server {
	return &Server{
		ops:     NewOpsHandler(deps),
		players: NewPlayersHandler(deps, maxLimit),
		matches: NewMatchesHandler(deps),
		ranking: NewRankingHandler(deps, maxLimit),
		export:  NewExportHandler(deps),
	}
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(_ context.Context, r chi.Router) {
	r.Get("/healthz", MetricsMiddleware(s.ops.HandleHealth, "healthz"))
	r.Get("/metrics", s.ops.HandleHealth)
	r.Get("/stats", MetricsMiddleware(s.ops.HandleStats, "stats"))

	r.Post("/players", MetricsMiddleware(s.players.HandleCreatePlayer, "players"))
	r.Route("/players/{id}", func(r chi.Router) {
		r.Get("/", MetricsMiddleware(s.players.HandleGetPlayer, "player"))
		r.Get("/stats", MetricsMiddleware(s.players.HandleGetStats, "player_stats"))
		r.Get("/matches", MetricsMiddleware(s.players.HandleGetMatches, "player_matches"))
	})

	r.Post("/matches", MetricsMiddleware(s.matches.HandlePostMatch, "matches"))
	r.Get("/leaderboard", MetricsMiddleware(s.ranking.HandleLeaderboard, "leaderboard"))
	r.Get("/rank/{id}", MetricsMiddleware(s.ranking.HandleRank, "rank"))
	r.Get("/export.csv", MetricsMiddleware(s.export.HandleExport, "export"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeUpstreamError translates service and store errors to HTTP responses.
func writeUpstreamError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	case errors.Is(err, service.ErrUnknownPlayer):
		writeError(w, http.StatusBadRequest, "unknown_player", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, service.ErrInvalidMatch),
		errors.Is(err, service.ErrInvalidPlayer),
		errors.Is(err, repository.ErrInvalidLimit):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	case errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "conflict", WrapKind(op, ErrConflict, err))
	case errors.Is(err, service.ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", WrapKind(op, ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// parseLimit reads ?limit. A missing value yields def, or fails when def is 0.
// On failure it returns the error code for the response.
func parseLimit(r *http.Request, def, maxLimit int) (int, string, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" && def > 0 {
		return def, "", true
	}
	n, err := strconv.Atoi(raw)
	switch {
	case err != nil || n < 1:
		return 0, "bad_request", false
	case n > maxLimit:
		return 0, "limit_exceeded", false
	}
	return n, "", true
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// PlayerDependencies defines the player operations.
type PlayerDependencies interface {
	RegisterPlayer(ctx context.Context, p model.Player) (model.Player, error)
	Player(ctx context.Context, playerID string) (model.Player, error)
	PlayerStats(ctx context.Context, playerID string) (model.PlayerStats, error)
	PlayerMatches(ctx context.Context, playerID string, limit int) ([]model.MatchRecord, error)
}
