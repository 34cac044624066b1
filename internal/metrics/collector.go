package metrics

import (
	"sort"
	"sync"
)

// timingBufferCapacity bounds the processing-duration ring buffer; the oldest
// entry is dropped when full.
const timingBufferCapacity = 100

// Collector accumulates processing outcomes. All methods are safe for
// concurrent use; Snapshot is taken under the same lock as writes so every
// snapshot is internally consistent.
type Collector struct {
	mu sync.Mutex

	requests  int64
	successes int64
	failures  int64
	cacheHits int64

	timings  []float64
	timingAt int

	errorKinds map[string]int64
}

// TimingStats summarizes the retained processing durations.
type TimingStats struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// ErrorKindCount is one histogram bucket in a snapshot.
type ErrorKindCount struct {
	Kind  string `json:"kind"`
	Count int64  `json:"count"`
}

// Snapshot is a consistent copy of the collector state.
type Snapshot struct {
	Requests   int64            `json:"requests"`
	Successes  int64            `json:"successes"`
	Failures   int64            `json:"failures"`
	CacheHits  int64            `json:"cacheHits"`
	Timing     TimingStats      `json:"timing"`
	ErrorKinds []ErrorKindCount `json:"errorKinds"`
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		timings:    make([]float64, 0, timingBufferCapacity),
		errorKinds: make(map[string]int64),
	}
}

// RecordOutcome registers one processed request. errorKind is ignored unless
// the outcome is a failure.
func (c *Collector) RecordOutcome(success, cacheHit bool, processingTimeSeconds float64, errorKind string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	switch {
	case cacheHit:
		c.cacheHits++
		c.successes++
	case success:
		c.successes++
	default:
		c.failures++
		if errorKind != "" {
			c.errorKinds[errorKind]++
		}
	}

	if len(c.timings) < timingBufferCapacity {
		c.timings = append(c.timings, processingTimeSeconds)
	} else {
		c.timings[c.timingAt] = processingTimeSeconds
	}
	c.timingAt = (c.timingAt + 1) % timingBufferCapacity
}

// Snapshot returns a consistent copy of all counters, timing stats over the
// retained window, and the error-kind histogram sorted by descending count.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Requests:  c.requests,
		Successes: c.successes,
		Failures:  c.failures,
		CacheHits: c.cacheHits,
	}

	if len(c.timings) > 0 {
		var sum float64
		min := c.timings[0]
		max := c.timings[0]
		for _, t := range c.timings {
			sum += t
			if t < min {
				min = t
			}
			if t > max {
				max = t
			}
		}
		snap.Timing = TimingStats{
			Count:   len(c.timings),
			Average: sum / float64(len(c.timings)),
			Min:     min,
			Max:     max,
		}
	}

	snap.ErrorKinds = make([]ErrorKindCount, 0, len(c.errorKinds))
	for kind, count := range c.errorKinds {
		snap.ErrorKinds = append(snap.ErrorKinds, ErrorKindCount{Kind: kind, Count: count})
	}
	sort.Slice(snap.ErrorKinds, func(i, j int) bool {
		if snap.ErrorKinds[i].Count != snap.ErrorKinds[j].Count {
			return snap.ErrorKinds[i].Count > snap.ErrorKinds[j].Count
		}
		return snap.ErrorKinds[i].Kind < snap.ErrorKinds[j].Kind
	})

	return snap
}
