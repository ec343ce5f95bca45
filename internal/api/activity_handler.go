package api

import (
	"net/http"
	"strconv"

	"github.com/alecgard/kyosor/internal/activity"
	"github.com/alecgard/kyosor/internal/auth"
	"github.com/alecgard/kyosor/internal/metrics"
)

// activityHandler serves the activity journal.
type activityHandler struct {
	responder
	log       *activity.Log
	collector *activity.Collector
}

func newActivityHandler(log *activity.Log, collector *activity.Collector, m *metrics.Metrics) *activityHandler {
	return &activityHandler{responder: responder{metrics: m}, log: log, collector: collector}
}

// List handles GET /api/v1/activity?limit= and returns the newest events
// involving the caller.
func (h *activityHandler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	q := activity.Query{Handle: p.Handle}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil || l < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		q.Limit = l
	}

	// Buffered events are written first so callers see their own actions.
	h.collector.Flush()

	events, err := h.log.Recent(r.Context(), q)
	if err != nil {
		h.fail(w, r, err, "failed to read activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}
