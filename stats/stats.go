// Package stats counts key-value store operations for introspection. The
// collector is plain instrumentation: nothing reads it to make decisions.
package stats

import (
	"context"
	"sync/atomic"
	"time"
)

// Kind classifies a store operation for the breakdown counters.
type Kind string

const (
	KindGet      Kind = "get"
	KindSet      Kind = "set"
	KindDel      Kind = "del"
	KindIncr     Kind = "incr"
	KindPipeline Kind = "pipeline"
	KindOther    Kind = "other"
)

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total  int64          `json:"totalOperations"`
	ByKind map[Kind]int64 `json:"operationBreakdown"`
}

// Collector accumulates per-kind operation counts. A Collector is created at
// process start and injected into the store client; it is safe for concurrent
// use and owns no goroutines until StartDailyReset is called.
type Collector struct {
	get      atomic.Int64
	set      atomic.Int64
	del      atomic.Int64
	incr     atomic.Int64
	pipeline atomic.Int64
	other    atomic.Int64
}

// NewCollector returns a zeroed collector.
func NewCollector() *Collector { return &Collector{} }

// Record increments the counter for kind. A nil collector is a no-op so the
// store client can run uninstrumented.
func (c *Collector) Record(kind Kind) {
	if c == nil {
		return
	}
	c.counter(kind).Add(1)
}

func (c *Collector) counter(kind Kind) *atomic.Int64 {
	switch kind {
	case KindGet:
		return &c.get
	case KindSet:
		return &c.set
	case KindDel:
		return &c.del
	case KindIncr:
		return &c.incr
	case KindPipeline:
		return &c.pipeline
	default:
		return &c.other
	}
}

// Snapshot copies the current counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{ByKind: map[Kind]int64{}}
	}
	byKind := map[Kind]int64{
		KindGet:      c.get.Load(),
		KindSet:      c.set.Load(),
		KindDel:      c.del.Load(),
		KindIncr:     c.incr.Load(),
		KindPipeline: c.pipeline.Load(),
		KindOther:    c.other.Load(),
	}
	var total int64
	for _, n := range byKind {
		total += n
	}
	return Snapshot{Total: total, ByKind: byKind}
}

// Reset zeroes all counters.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.get.Store(0)
	c.set.Store(0)
	c.del.Store(0)
	c.incr.Store(0)
	c.pipeline.Store(0)
	c.other.Store(0)
}

// StartDailyReset resets the counters at each local midnight until ctx is
// cancelled. The owning process decides whether to run it.
func (c *Collector) StartDailyReset(ctx context.Context) {
	go func() {
		for {
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				c.Reset()
			}
		}
	}()
}
