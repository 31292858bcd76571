package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	service "github.com/okian/shuttle/internal/app"
	"github.com/okian/shuttle/internal/domain/model"
)

// MatchDependencies defines the match submission operation.
type MatchDependencies interface {
	SubmitMatch(ctx context.Context, m model.Match) (service.SubmitResult, error)
}

// MatchesHandler handles match submissions.
type MatchesHandler struct {
	deps MatchDependencies
}

// NewMatchesHandler creates a new matches handler.
func NewMatchesHandler(deps MatchDependencies) *MatchesHandler {
	return &MatchesHandler{deps: deps}
}

// matchRequest mirrors the OpenAPI schema for POST /matches.
type matchRequest struct {
	MatchID  string   `json:"match_id"`
	Side1    []string `json:"side1"`
	Side2    []string `json:"side2"`
	Score1   *int     `json:"score1"`
	Score2   *int     `json:"score2"`
	PlayedAt string   `json:"played_at"`
}

func (m matchRequest) toMatch() (model.Match, error) {
	switch {
	case len(m.Side1) == 0:
		return model.Match{}, errors.New("missing side1")
	case len(m.Side2) == 0:
		return model.Match{}, errors.New("missing side2")
	case m.Score1 == nil || m.Score2 == nil:
		return model.Match{}, errors.New("missing score1 or score2")
	}
	out := model.Match{
		MatchID: m.MatchID,
		Side1:   m.Side1,
		Side2:   m.Side2,
		Score1:  *m.Score1,
		Score2:  *m.Score2,
	}
	if m.PlayedAt != "" {
		ts, err := time.Parse(time.RFC3339, m.PlayedAt)
		if err != nil {
			return model.Match{}, errors.New("invalid played_at; must be RFC3339")
		}
		out.PlayedAt = ts
	}
	return out, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	MatchID   string `json:"match_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostMatch handles POST /matches requests. Rating happens
// asynchronously; 202 means the match was queued.
func (h *MatchesHandler) HandlePostMatch(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_match"
	var req matchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	m, err := req.toMatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	res, err := h.deps.SubmitMatch(r.Context(), m)
	if err != nil {
		writeUpstreamError(w, op, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", MatchID: res.MatchID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", MatchID: res.MatchID})
}
