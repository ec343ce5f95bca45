package api

import (
	"errors"
	"net/http"

	"github.com/alecgard/kyosor/internal/activity"
	"github.com/alecgard/kyosor/internal/auth"
	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/metrics"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	responder
	dir    *identity.Directory
	events *activity.Collector
}

func newAuthHandler(dir *identity.Directory, events *activity.Collector, m *metrics.Metrics) *authHandler {
	return &authHandler{responder: responder{metrics: m}, dir: dir, events: events}
}

// Register handles POST /api/v1/auth/register.
func (h *authHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	sess, err := h.dir.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, err, "failed to register")
		return
	}
	h.metrics.IncAuthSuccess("register")
	h.events.Record(activity.Event{Kind: activity.KindRegistered, Actor: sess.Handle})
	auditLog(r, "register", "identity", sess.Handle)

	h.writeSession(w, r, http.StatusCreated, sess)
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CredentialKey string `json:"credential_key"`
		Secret        string `json:"secret"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.CredentialKey == "" || req.Secret == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "credential_key and secret are required")
		return
	}

	sess, err := h.dir.Login(r.Context(), req.CredentialKey, req.Secret)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) || errors.Is(err, identity.ErrBadSecret) {
			h.metrics.IncAuthFailure("login")
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credential key or secret")
			return
		}
		h.fail(w, r, err, "failed to create session")
		return
	}
	h.metrics.IncAuthSuccess("login")

	h.writeSession(w, r, http.StatusOK, sess)
}

func (h *authHandler) writeSession(w http.ResponseWriter, r *http.Request, status int, sess *identity.Session) {
	id, err := h.dir.Get(r.Context(), sess.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to load identity")
		return
	}
	writeJSON(w, status, sessionView{
		Token:    sess.Token,
		IssuedAt: sess.IssuedAt,
		Identity: newIdentityView(id),
	})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	if p == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	id, err := h.dir.Get(r.Context(), p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to load identity")
		return
	}
	writeJSON(w, http.StatusOK, newIdentityView(id))
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.Logout(r.Context()); err != nil {
		h.fail(w, r, err, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
