package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alecgard/kyosor/internal/activity"
	"github.com/alecgard/kyosor/internal/auth"
	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/ledger"
	"github.com/alecgard/kyosor/internal/metrics"
	"github.com/alecgard/kyosor/internal/rename"
)

// meHandler serves the logged-in identity's own records: hours, calendar,
// profile, secret and handle.
type meHandler struct {
	responder
	dir     *identity.Directory
	ledger  *ledger.Ledger
	renamer *rename.Coordinator
	events  *activity.Collector
	now     func() time.Time
}

func newMeHandler(dir *identity.Directory, l *ledger.Ledger, renamer *rename.Coordinator, events *activity.Collector, m *metrics.Metrics) *meHandler {
	return &meHandler{
		responder: responder{metrics: m},
		dir:       dir,
		ledger:    l,
		renamer:   renamer,
		events:    events,
		now:       time.Now,
	}
}

// parseTimeParam parses an RFC 3339 timestamp or a bare date. An empty
// string yields the zero time.
func parseTimeParam(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	// Try RFC3339 first.
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	// Fall back to date-only.
	t, err = time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Hours handles GET /api/v1/me/hours.
func (h *meHandler) Hours(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	stats, err := h.ledger.Stats(r.Context(), p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to load hours")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Notifications handles GET /api/v1/me/notifications?as_of=.
func (h *meHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	asOf, err := parseTimeParam(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_as_of", "as_of must be RFC 3339 or YYYY-MM-DD")
		return
	}
	if asOf.IsZero() {
		asOf = h.now()
	}

	notes, err := h.ledger.Notifications(r.Context(), p.Handle, asOf)
	if err != nil {
		h.fail(w, r, err, "failed to load notifications")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": notes,
	})
}

// Calendar handles GET /api/v1/me/calendar?year=&month=&tz=. Missing
// parameters default to the current month in UTC.
func (h *meHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	q := r.URL.Query()

	loc := time.UTC
	if tz := q.Get("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_tz", "tz must be an IANA time zone name")
			return
		}
		loc = l
	}

	now := h.now().In(loc)
	year, month := now.Year(), now.Month()
	if s := q.Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil || y < 1 {
			writeError(w, http.StatusBadRequest, "invalid_year", "year must be a positive integer")
			return
		}
		year = y
	}
	if s := q.Get("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			writeError(w, http.StatusBadRequest, "invalid_month", "month must be between 1 and 12")
			return
		}
		month = time.Month(m)
	}

	days, err := h.ledger.Calendar(r.Context(), p.Handle, year, month, loc)
	if err != nil {
		h.fail(w, r, err, "failed to build calendar")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"year":  year,
		"month": int(month),
		"days":  days,
	})
}

// Profile handles GET /api/v1/me/profile.
func (h *meHandler) Profile(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	id, err := h.dir.Get(r.Context(), p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, newIdentityView(id))
}

// UpdateProfile handles PUT /api/v1/me/profile.
func (h *meHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var patch identity.ProfilePatch
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	id, err := h.dir.UpdateProfile(r.Context(), p.Handle, patch)
	if err != nil {
		h.fail(w, r, err, "failed to update profile")
		return
	}
	auditLog(r, "update", "profile", p.Handle)
	writeJSON(w, http.StatusOK, newIdentityView(id))
}

// ChangeSecret handles PUT /api/v1/me/secret.
func (h *meHandler) ChangeSecret(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var req struct {
		CurrentEmail string `json:"current_email"`
		NewSecret    string `json:"new_secret"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if err := h.dir.ChangeSecret(r.Context(), p.Handle, req.CurrentEmail, req.NewSecret); err != nil {
		h.fail(w, r, err, "failed to change secret")
		return
	}
	auditLog(r, "change_secret", "identity", p.Handle)
	w.WriteHeader(http.StatusNoContent)
}

// Rename handles PUT /api/v1/me/name.
func (h *meHandler) Rename(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var req struct {
		Handle string `json:"handle"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	handle, err := h.renamer.Rename(r.Context(), p.Handle, req.Handle)
	if err != nil {
		h.metrics.IncRename("error")
		h.fail(w, r, err, "failed to rename identity")
		return
	}
	if handle != p.Handle {
		h.metrics.IncRename("success")
		h.events.Record(activity.Event{Kind: activity.KindRenamed, Actor: handle, Subject: p.Handle})
		auditLog(r, "rename", "identity", handle, "previous_handle", p.Handle)
	}

	id, err := h.dir.Get(r.Context(), handle)
	if err != nil {
		h.fail(w, r, err, "failed to load identity")
		return
	}
	writeJSON(w, http.StatusOK, newIdentityView(id))
}
