package kvstore

import (
	"context"
	"fmt"

	"github.com/alecgard/kyosor/internal/crypto"
)

// Sealed wraps a Store so values are encrypted at rest.
type Sealed struct {
	inner  Store
	cipher *crypto.Cipher
}

// NewSealed returns inner unchanged when c is nil (encryption disabled).
func NewSealed(inner Store, c *crypto.Cipher) Store {
	if c == nil {
		return inner
	}
	return &Sealed{inner: inner, cipher: c}
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return raw, ok, err
	}
	plain, err := s.cipher.Open(raw)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return plain, true, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.cipher.Seal(value)
	if err != nil {
		return fmt.Errorf("sealing %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *Sealed) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}
