package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/authcore/internal/clock"
)

// Counter counts requests per key within a fixed window. Implementations
// must be safe for concurrent use.
type Counter interface {
	// Incr adds one request to the key's current window and returns the
	// count after the increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type windowCount struct {
	window int64
	count  int64
}

// memoryCounter is the in-process default. Windows are aligned to the
// epoch; the count resets when the window index advances. The CAS loop
// keeps the counter lock-free under contention.
type memoryCounter struct {
	clock  clock.Clock
	counts sync.Map // string -> windowCount
	prune  sync.Once
}

// NewMemoryCounter returns a fixed-window counter backed by process
// memory. Counts are per instance; deploy the Redis counter when limits
// must hold across replicas.
func NewMemoryCounter(clk clock.Clock) Counter {
	return &memoryCounter{clock: clk}
}

func (c *memoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	idx := c.clock.Now().UnixNano() / int64(window)
	for {
		v, loaded := c.counts.LoadOrStore(key, windowCount{window: idx, count: 1})
		if !loaded {
			c.prune.Do(func() { go c.pruneLoop(window) })
			return 1, nil
		}
		cur := v.(windowCount)
		next := windowCount{window: idx, count: cur.count + 1}
		if cur.window != idx {
			next.count = 1
		}
		if c.counts.CompareAndSwap(key, cur, next) {
			return next.count, nil
		}
	}
}

// pruneLoop drops keys whose window has long passed so idle callers do
// not accumulate forever.
func (c *memoryCounter) pruneLoop(window time.Duration) {
	interval := window * 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		idx := c.clock.Now().UnixNano() / int64(window)
		c.counts.Range(func(k, v any) bool {
			if wc, ok := v.(windowCount); ok && wc.window < idx-1 {
				c.counts.CompareAndDelete(k, v)
			}
			return true
		})
	}
}
