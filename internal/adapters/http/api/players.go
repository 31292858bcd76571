package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/okian/shuttle/internal/domain/model"
)

const defaultHistoryLimit = 20

// PlayersHandler handles player registration and lookups.
type PlayersHandler struct {
	deps     PlayerDependencies
	maxLimit int
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies, maxLimit int) *PlayersHandler {
	return &PlayersHandler{deps: deps, maxLimit: maxLimit}
}

// playerRequest mirrors the OpenAPI schema for POST /players.
type playerRequest struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (p playerRequest) validate() error {
	if strings.TrimSpace(p.FirstName) == "" {
		return errors.New("missing first_name")
	}
	return nil
}

// HandleCreatePlayer handles POST /players requests.
func (h *PlayersHandler) HandleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_player"
	var req playerRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	p, err := h.deps.RegisterPlayer(r.Context(), model.Player{
		ID:        req.ID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HandleGetPlayer handles GET /players/{id} requests.
func (h *PlayersHandler) HandleGetPlayer(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	p, err := h.deps.Player(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleGetStats handles GET /players/{id}/stats requests.
func (h *PlayersHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player_stats"
	st, err := h.deps.PlayerStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleGetMatches handles GET /players/{id}/matches?limit=N requests.
func (h *PlayersHandler) HandleGetMatches(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player_matches"
	limit, code, ok := parseLimit(r, defaultHistoryLimit, h.maxLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, code, NewKind(op, ErrBadRequest))
		return
	}
	recs, err := h.deps.PlayerMatches(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	if recs == nil {
		recs = []model.MatchRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}
