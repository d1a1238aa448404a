// Package relaystats accumulates relay throughput counters and logs them
// periodically.
package relaystats

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Counters holds accumulated relay totals. Reset on each Snapshot call.
type Counters struct {
	messages atomic.Uint64
	bytes    atomic.Uint64
}

// NewCounters returns zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

// Record counts one relayed message of n payload bytes. Nil-safe.
func (c *Counters) Record(n int) {
	if c == nil {
		return
	}
	c.messages.Add(1)
	c.bytes.Add(uint64(n))
}

// Snapshot returns the totals accumulated since the last call and resets them.
func (c *Counters) Snapshot() (messages, bytes uint64) {
	return c.messages.Swap(0), c.bytes.Swap(0)
}

// Run logs relay stats every interval until ctx is canceled.
func Run(ctx context.Context, c *Counters, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			messages, bytes := c.Snapshot()
			if messages > 0 {
				slog.Info("relay stats",
					"messages", messages,
					"bytes", bytes,
					"kbps", float64(bytes)/interval.Seconds()/1024)
			}
		}
	}
}
