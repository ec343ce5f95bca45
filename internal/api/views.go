package api

import (
	"time"

	"github.com/alecgard/kyosor/internal/identity"
)

// identityView is an identity as shown to its owner. The secret hash
// never leaves the server.
type identityView struct {
	Handle           string           `json:"handle"`
	CredentialKey    string           `json:"credential_key"`
	Friends          []string         `json:"friends"`
	IncomingRequests []string         `json:"incoming_requests"`
	OutgoingRequests []string         `json:"outgoing_requests"`
	Profile          identity.Profile `json:"profile"`
	CreatedAt        time.Time        `json:"created_at"`
}

func newIdentityView(id *identity.Identity) identityView {
	return identityView{
		Handle:           id.Handle,
		CredentialKey:    id.CredentialKey,
		Friends:          nonNil(id.Friends),
		IncomingRequests: nonNil(id.IncomingRequests),
		OutgoingRequests: nonNil(id.OutgoingRequests),
		Profile:          id.Profile,
		CreatedAt:        id.CreatedAt,
	}
}

// peerView is another identity as shown in friend lists.
type peerView struct {
	Handle      string `json:"handle"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Institution string `json:"institution,omitempty"`
}

func newPeerViews(ids []*identity.Identity) []peerView {
	out := make([]peerView, 0, len(ids))
	for _, id := range ids {
		out = append(out, peerView{
			Handle:      id.Handle,
			AvatarRef:   id.Profile.AvatarRef,
			Institution: id.Profile.Institution,
		})
	}
	return out
}

type sessionView struct {
	Token    string       `json:"token"`
	IssuedAt time.Time    `json:"issued_at"`
	Identity identityView `json:"identity"`
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
