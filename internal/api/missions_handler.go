package api

import (
	"net/http"
	"strconv"

	"github.com/alecgard/kyosor/internal/activity"
	"github.com/alecgard/kyosor/internal/auth"
	"github.com/alecgard/kyosor/internal/metrics"
	"github.com/alecgard/kyosor/internal/mission"
	"github.com/go-chi/chi/v5"
)

// missionsHandler groups mission registry HTTP handlers.
type missionsHandler struct {
	responder
	registry *mission.Registry
	events   *activity.Collector
}

func newMissionsHandler(registry *mission.Registry, events *activity.Collector, m *metrics.Metrics) *missionsHandler {
	return &missionsHandler{responder: responder{metrics: m}, registry: registry, events: events}
}

// missionID parses the {id} URL parameter, writing a 400 on failure.
func missionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "mission id must be a positive integer")
		return 0, false
	}
	return id, true
}

// transition records a successful state change everywhere it is observed.
func (h *missionsHandler) transition(r *http.Request, name, kind, actor, subject string, id int64) {
	h.metrics.IncMissionTransition(name)
	h.events.Record(activity.Event{Kind: kind, Actor: actor, Subject: subject, MissionID: id})
	auditLog(r, name, "mission", strconv.FormatInt(id, 10))
}

// List handles GET /api/v1/missions.
//
// Query parameters: q (name search), status (Open, InProgress, Completed)
// and view (all, mine, history).
func (h *missionsHandler) List(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	q := r.URL.Query()

	f := mission.Filter{
		SearchTerm: q.Get("q"),
		ViewMode:   mission.ViewAll,
	}
	if v := q.Get("view"); v != "" {
		switch mode := mission.ViewMode(v); mode {
		case mission.ViewAll, mission.ViewMine, mission.ViewHistory:
			f.ViewMode = mode
		default:
			writeError(w, http.StatusBadRequest, "invalid_view", "view must be all, mine or history")
			return
		}
	}
	if s := q.Get("status"); s != "" {
		status := mission.Status(s)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be Open, InProgress or Completed")
			return
		}
		f.StatusFilter = status
	}

	views, err := h.registry.List(r.Context(), p.Handle, f)
	if err != nil {
		h.fail(w, r, err, "failed to list missions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"missions": views,
	})
}

// Create handles POST /api/v1/missions.
func (h *missionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var d mission.Draft
	if err := readJSON(r, &d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	m, err := h.registry.Create(r.Context(), p.Handle, d)
	if err != nil {
		h.fail(w, r, err, "failed to create mission")
		return
	}
	h.transition(r, "created", activity.KindMissionCreated, p.Handle, "", m.ID)
	writeJSON(w, http.StatusCreated, m)
}

// Get handles GET /api/v1/missions/{id}.
func (h *missionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := missionID(w, r)
	if !ok {
		return
	}
	m, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "failed to get mission")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Edit handles PUT /api/v1/missions/{id}.
func (h *missionsHandler) Edit(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	id, ok := missionID(w, r)
	if !ok {
		return
	}

	var patch mission.Patch
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	m, err := h.registry.Edit(r.Context(), id, p.Handle, patch)
	if err != nil {
		h.fail(w, r, err, "failed to edit mission")
		return
	}
	h.transition(r, "edited", activity.KindMissionEdited, p.Handle, "", id)
	writeJSON(w, http.StatusOK, m)
}

// Delete handles DELETE /api/v1/missions/{id}. Only the chief may delete.
func (h *missionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	id, ok := missionID(w, r)
	if !ok {
		return
	}

	if err := h.registry.CancelOwned(r.Context(), id, p.Handle); err != nil {
		h.fail(w, r, err, "failed to delete mission")
		return
	}
	h.transition(r, "deleted", activity.KindMissionDeleted, p.Handle, "", id)
	w.WriteHeader(http.StatusNoContent)
}

// Join handles POST /api/v1/missions/{id}/join.
func (h *missionsHandler) Join(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	id, ok := missionID(w, r)
	if !ok {
		return
	}

	m, err := h.registry.Join(r.Context(), id, p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to join mission")
		return
	}
	h.transition(r, "joined", activity.KindMissionJoined, p.Handle, m.ChiefHandle, id)
	writeJSON(w, http.StatusOK, m)
}

// Cancel handles POST /api/v1/missions/{id}/cancel: the actor leaves.
func (h *missionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	id, ok := missionID(w, r)
	if !ok {
		return
	}

	m, err := h.registry.Cancel(r.Context(), id, p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to leave mission")
		return
	}
	h.transition(r, "left", activity.KindMissionLeft, p.Handle, m.ChiefHandle, id)
	writeJSON(w, http.StatusOK, m)
}

// Finish handles POST /api/v1/missions/{id}/finish.
func (h *missionsHandler) Finish(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	id, ok := missionID(w, r)
	if !ok {
		return
	}

	m, err := h.registry.Finish(r.Context(), id, p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to finish mission")
		return
	}
	h.metrics.AddHoursSettled(mission.RewardHours)
	h.transition(r, "finished", activity.KindMissionFinished, p.Handle, "", id)
	writeJSON(w, http.StatusOK, m)
}

// RemoveMember handles DELETE /api/v1/missions/{id}/crew/{handle}.
func (h *missionsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	id, ok := missionID(w, r)
	if !ok {
		return
	}
	target := chi.URLParam(r, "handle")

	m, err := h.registry.RemoveMember(r.Context(), id, p.Handle, target)
	if err != nil {
		h.fail(w, r, err, "failed to remove crew member")
		return
	}
	h.transition(r, "crew_removed", activity.KindCrewRemoved, p.Handle, target, id)
	writeJSON(w, http.StatusOK, m)
}
