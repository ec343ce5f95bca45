package auth

import (
	"context"
	"time"
)

// Principal is the identity behind an authenticated request.
type Principal struct {
	Handle   string
	Token    string
	IssuedAt time.Time
}

// SessionLookup is the interface for resolving session tokens to principals.
type SessionLookup interface {
	LookupSession(ctx context.Context, token string) (*Principal, error)
}

// Is reports whether the principal acts as handle.
func (p *Principal) Is(handle string) bool {
	return p != nil && p.Handle == handle
}
