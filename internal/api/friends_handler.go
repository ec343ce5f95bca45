package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/alecgard/kyosor/internal/activity"
	"github.com/alecgard/kyosor/internal/auth"
	"github.com/alecgard/kyosor/internal/identity"
	"github.com/alecgard/kyosor/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// friendsHandler groups friend graph HTTP handlers.
type friendsHandler struct {
	responder
	dir    *identity.Directory
	events *activity.Collector
}

func newFriendsHandler(dir *identity.Directory, events *activity.Collector, m *metrics.Metrics) *friendsHandler {
	return &friendsHandler{responder: responder{metrics: m}, dir: dir, events: events}
}

// handleParam returns the unescaped {handle} URL parameter.
func handleParam(r *http.Request) string {
	raw := chi.URLParam(r, "handle")
	if h, err := url.PathUnescape(raw); err == nil {
		return h
	}
	return raw
}

type friendsOverview struct {
	Friends  []peerView `json:"friends"`
	Incoming []peerView `json:"incoming"`
	Outgoing []peerView `json:"outgoing"`
}

// List handles GET /api/v1/friends.
func (h *friendsHandler) List(w http.ResponseWriter, r *http.Request) {
	h.writeOverview(w, r, http.StatusOK)
}

func (h *friendsHandler) writeOverview(w http.ResponseWriter, r *http.Request, status int) {
	p := auth.PrincipalFromContext(r.Context())
	ctx := r.Context()

	friends, err := h.dir.Friends(ctx, p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to list friends")
		return
	}
	incoming, err := h.dir.IncomingRequests(ctx, p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to list friend requests")
		return
	}
	outgoing, err := h.dir.OutgoingRequests(ctx, p.Handle)
	if err != nil {
		h.fail(w, r, err, "failed to list friend requests")
		return
	}

	writeJSON(w, status, friendsOverview{
		Friends:  newPeerViews(friends),
		Incoming: newPeerViews(incoming),
		Outgoing: newPeerViews(outgoing),
	})
}

// SendRequest handles POST /api/v1/friends/requests.
func (h *friendsHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())

	var req struct {
		Handle string `json:"handle"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	to := strings.TrimSpace(req.Handle)
	if to == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "handle is required")
		return
	}

	if err := h.dir.SendFriendRequest(r.Context(), p.Handle, to); err != nil {
		h.fail(w, r, err, "failed to send friend request")
		return
	}
	h.events.Record(activity.Event{Kind: activity.KindFriendRequested, Actor: p.Handle, Subject: to})
	auditLog(r, "friend_request", "identity", to)

	h.writeOverview(w, r, http.StatusOK)
}

// Accept handles POST /api/v1/friends/requests/{handle}/accept.
func (h *friendsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	from := handleParam(r)

	if err := h.dir.AcceptFriendRequest(r.Context(), p.Handle, from); err != nil {
		h.fail(w, r, err, "failed to accept friend request")
		return
	}
	h.events.Record(activity.Event{Kind: activity.KindFriendAccepted, Actor: p.Handle, Subject: from})
	auditLog(r, "friend_accept", "identity", from)

	h.writeOverview(w, r, http.StatusOK)
}

// Decline handles POST /api/v1/friends/requests/{handle}/decline.
func (h *friendsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	from := handleParam(r)

	if err := h.dir.DeclineFriendRequest(r.Context(), p.Handle, from); err != nil {
		h.fail(w, r, err, "failed to decline friend request")
		return
	}
	h.events.Record(activity.Event{Kind: activity.KindFriendDeclined, Actor: p.Handle, Subject: from})
	auditLog(r, "friend_decline", "identity", from)

	h.writeOverview(w, r, http.StatusOK)
}

// Remove handles DELETE /api/v1/friends/{handle}.
func (h *friendsHandler) Remove(w http.ResponseWriter, r *http.Request) {
	p := auth.PrincipalFromContext(r.Context())
	other := handleParam(r)

	if err := h.dir.RemoveFriend(r.Context(), p.Handle, other); err != nil {
		h.fail(w, r, err, "failed to remove friend")
		return
	}
	h.events.Record(activity.Event{Kind: activity.KindFriendRemoved, Actor: p.Handle, Subject: other})
	auditLog(r, "friend_remove", "identity", other)

	h.writeOverview(w, r, http.StatusOK)
}
