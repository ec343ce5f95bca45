package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// LoadJSON decodes the blob stored under key into dst.
//
// A missing key, a value the store reports as ErrCorrupt, or malformed JSON
// all leave dst at its zero value and return nil. Only failures of the
// backend itself are returned, so a caller never overwrites data it could
// not read.
func LoadJSON[T any](ctx context.Context, s Store, key string, dst *T) error {
	var zero T
	*dst = zero

	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCorrupt) {
			slog.Warn("discarding unreadable blob", "key", key, "error", err)
			return nil
		}
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		slog.Warn("discarding malformed blob", "key", key, "error", err)
		*dst = zero
		return nil
	}
	return nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
