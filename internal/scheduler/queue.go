package scheduler

import (
	"time"

	"github.com/soundlib/waveform-be/internal/pipeline/domain"
)

// Job status values, terminal once COMPLETED or FAILED.
const (
	StatusQueued    = "QUEUED"
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// jobHeap orders jobs by ExecuteAt, ties broken by enqueue order. It holds
// only jobs waiting to run; running and terminal jobs live solely in the
// scheduler's index map, so the two can never drift apart.
type jobHeap []*job

type job struct {
	id          string
	payload     *domain.WaveformJobPayload
	target      string
	createdAt   time.Time
	executeAt   time.Time
	attempts    int
	maxAttempts int
	status      string
	lastError   string
	seq         uint64
}

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if !h[i].executeAt.Equal(h[j].executeAt) {
		return h[i].executeAt.Before(h[j].executeAt)
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*job)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
