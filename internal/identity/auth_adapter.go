package identity

import (
	"context"

	"github.com/alecgard/kyosor/internal/auth"
)

// AuthAdapter adapts Directory to the auth.SessionLookup interface.
type AuthAdapter struct {
	dir *Directory
}

// NewAuthAdapter creates a new AuthAdapter wrapping the given directory.
func NewAuthAdapter(dir *Directory) *AuthAdapter {
	return &AuthAdapter{dir: dir}
}

// LookupSession resolves a bearer token to the logged-in identity.
func (a *AuthAdapter) LookupSession(ctx context.Context, token string) (*auth.Principal, error) {
	sess, err := a.dir.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &auth.Principal{
		Handle:   sess.Handle,
		Token:    sess.Token,
		IssuedAt: sess.IssuedAt,
	}, nil
}
