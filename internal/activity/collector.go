package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Appender is the interface used by Collector to persist events.
// It exists to allow testing without a real store.
type Appender interface {
	Append(ctx context.Context, events []Event) error
}

// Collector buffers events in memory and periodically flushes them to the
// journal in batches. It is safe for concurrent use.
type Collector struct {
	journal       Appender
	buffer        []Event
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	onFlush       func(count int, err error)
	done          chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new Collector that flushes to journal when the
// buffer reaches batchSize or every flushInterval, whichever comes first.
func NewCollector(journal Appender, batchSize int, flushInterval time.Duration) *Collector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Collector{
		journal:       journal,
		buffer:        make([]Event, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
	}
}

// OnFlush registers a callback invoked after every flush attempt.
func (c *Collector) OnFlush(fn func(count int, err error)) {
	c.mu.Lock()
	c.onFlush = fn
	c.mu.Unlock()
}

// Start flushes buffered events on a timer. It blocks until Stop is called
// or the context is cancelled.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-ctx.Done():
			c.Flush()
			return
		case <-c.done:
			c.Flush()
			return
		}
	}
}

// Record adds an event to the buffer, stamping it if needed. Reaching
// batchSize triggers an immediate flush.
func (c *Collector) Record(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, ev)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		c.Flush()
	}
}

// Flush drains the buffer into the journal. Errors are logged rather than
// returned so recording never blocks a request.
func (c *Collector) Flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Event, 0, c.batchSize)
	onFlush := c.onFlush
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.journal.Append(ctx, batch)
	if err != nil {
		slog.Error("failed to flush activity events", "count", len(batch), "error", err)
	}
	if onFlush != nil {
		onFlush(len(batch), err)
	}
}

// Stop signals the background goroutine to exit after a final flush.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
