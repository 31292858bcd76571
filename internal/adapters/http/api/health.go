package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/shuttle/pkg/metrics"
)

// StatsProvider reports service counters for GET /stats.
type StatsProvider interface {
	GetStats() map[string]any
}

// OpsHandler serves the operational endpoints: health, metrics and stats.
type OpsHandler struct {
	scrape http.Handler
	stats  StatsProvider
}

// NewOpsHandler exposes the shuttle metrics registry and stats.
func NewOpsHandler(stats StatsProvider) *OpsHandler {
	return &OpsHandler{
		scrape: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
		stats:  stats,
	}
}

// HandleHealth handles GET /healthz and GET /metrics. A successful scrape
// doubles as the liveness answer.
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.scrape.ServeHTTP(w, r)
}

// HandleStats handles GET /stats.
func (h *OpsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.GetStats())
}
