package activity

import (
	"context"
	"fmt"
	"sync"

	"github.com/alecgard/kyosor/internal/kvstore"
)

// LogKey is the blob holding the journal.
const LogKey = "activity_log"

// DefaultCapacity bounds the journal when no capacity is configured.
const DefaultCapacity = 500

// Log is a capped, oldest-first event journal stored as one blob.
type Log struct {
	store    kvstore.Store
	capacity int
	mu       sync.Mutex
}

// NewLog creates a journal in store that keeps the newest capacity events.
func NewLog(store kvstore.Store, capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{store: store, capacity: capacity}
}

// Append adds events to the journal, dropping the oldest beyond capacity.
// It is a no-op when events is empty.
func (l *Log) Append(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var existing []Event
	if err := kvstore.LoadJSON(ctx, l.store, LogKey, &existing); err != nil {
		return err
	}
	all := append(existing, events...)
	if over := len(all) - l.capacity; over > 0 {
		all = all[over:]
	}
	if err := kvstore.SaveJSON(ctx, l.store, LogKey, all); err != nil {
		return fmt.Errorf("appending activity: %w", err)
	}
	return nil
}

// Recent returns up to q.Limit events, newest first, optionally limited to
// events involving q.Handle.
func (l *Log) Recent(ctx context.Context, q Query) ([]Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	l.mu.Lock()
	var events []Event
	err := kvstore.LoadJSON(ctx, l.store, LogKey, &events)
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]Event, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		if q.Handle != "" && !events[i].Involves(q.Handle) {
			continue
		}
		out = append(out, events[i])
	}
	return out, nil
}
