package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundlib/waveform-be/internal/pipeline/domain"
)

// TargetWaveform is the job target this scheduler knows how to execute.
const TargetWaveform = "waveform"

// ErrStopped is returned by Enqueue after Shutdown has begun.
var ErrStopped = errors.New("scheduler is stopped")

// Processor executes one job payload. Implemented by pipeline.Processor;
// tests substitute stubs.
type Processor interface {
	Process(ctx context.Context, payload *domain.WaveformJobPayload) (*domain.ProcessingResult, error)
}

// JobStatus is the operator-facing view of one job.
type JobStatus struct {
	ID          string    `json:"id"`
	Target      string    `json:"target"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
	CreatedAt   time.Time `json:"createdAt"`
	ExecuteAt   time.Time `json:"executeAt"`
	LastError   string    `json:"lastError,omitempty"`
}

// Stats is a consistent snapshot of scheduler counters, taken under the same
// lock that guards mutation.
type Stats struct {
	Enqueued             int64   `json:"enqueued"`
	Completed            int64   `json:"completed"`
	Failed               int64   `json:"failed"`
	Retried              int64   `json:"retried"`
	Queued               int     `json:"queued"`
	AvgProcessingSeconds float64 `json:"avgProcessingSeconds"`
}

// Config holds scheduler construction parameters.
type Config struct {
	Processor    Processor
	Logger       *slog.Logger
	Workers      int           // worker goroutines, default 2
	PollInterval time.Duration // idle wait between queue polls, default 100ms
	MaxAttempts  int           // per-job execution budget, default 3

	// Backoff computes the delay before retry attempt k (1-based). Defaults
	// to 2^k seconds. Tests shrink it to keep retries fast.
	Backoff func(attempt int) time.Duration
}

// Scheduler is an in-memory, dev-oriented job scheduler: a lock-protected
// priority queue drained by a fixed pool of worker goroutines. Queueing is
// memory-only; durability is the external dispatcher's job in production.
type Scheduler struct {
	processor    Processor
	logger       *slog.Logger
	workers      int
	pollInterval time.Duration
	maxAttempts  int
	backoff      func(attempt int) time.Duration

	mu    sync.Mutex
	queue jobHeap
	jobs  map[string]*job
	seq   uint64

	enqueued         int64
	completed        int64
	failed           int64
	retried          int64
	processedSeconds float64
	processedCount   int64
	stopped          bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New constructs a scheduler. Call Start to spawn the worker pool.
func New(cfg *Config) *Scheduler {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := cfg.Backoff
	if backoff == nil {
		backoff = exponentialBackoff
	}
	return &Scheduler{
		processor:    cfg.Processor,
		logger:       cfg.Logger,
		workers:      workers,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		backoff:      backoff,
		jobs:         make(map[string]*job),
		stopChan:     make(chan struct{}),
	}
}

// exponentialBackoff returns 2^attempt seconds, capped at one hour.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	seconds := math.Pow(2, float64(attempt))
	if seconds > 3600 {
		seconds = 3600
	}
	return time.Duration(seconds * float64(time.Second))
}

// Start spawns the worker pool.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler",
		slog.Int("workers", s.workers),
		slog.Duration("poll_interval", s.pollInterval),
		slog.Int("max_attempts", s.maxAttempts),
	)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// Enqueue inserts a job due at now+delay and returns its id immediately; no
// processing happens inline.
func (s *Scheduler) Enqueue(payload *domain.WaveformJobPayload, target string, delay time.Duration) (string, error) {
	if delay < 0 {
		delay = 0
	}
	now := time.Now()
	j := &job{
		id:          uuid.New().String(),
		payload:     payload,
		target:      target,
		createdAt:   now,
		executeAt:   now.Add(delay),
		maxAttempts: s.maxAttempts,
		status:      StatusQueued,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	j.seq = s.seq
	s.seq++
	heap.Push(&s.queue, j)
	s.jobs[j.id] = j
	s.enqueued++

	s.logger.Info("Job enqueued",
		slog.String("job_id", j.id),
		slog.String("target", target),
		slog.Duration("delay", delay),
	)
	return j.id, nil
}

// GetStatus returns the lifecycle state of a job, or false for unknown ids.
func (s *Scheduler) GetStatus(jobID string) (*JobStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return &JobStatus{
		ID:          j.id,
		Target:      j.target,
		Status:      j.status,
		Attempts:    j.attempts,
		MaxAttempts: j.maxAttempts,
		CreatedAt:   j.createdAt,
		ExecuteAt:   j.executeAt,
		LastError:   j.lastError,
	}, true
}

// Stats returns cumulative counters and the running average processing time.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Enqueued:  s.enqueued,
		Completed: s.completed,
		Failed:    s.failed,
		Retried:   s.retried,
		Queued:    s.queue.Len(),
	}
	if s.processedCount > 0 {
		stats.AvgProcessingSeconds = s.processedSeconds / float64(s.processedCount)
	}
	return stats
}

// Shutdown stops dispatching new work and waits up to timeout for workers to
// drain. In-flight executions are never interrupted; on timeout the workers
// are abandoned mid-run and an error is returned.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler", slog.Duration("timeout", timeout))
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-time.After(timeout):
		s.logger.Warn("Scheduler shutdown timeout exceeded")
		return fmt.Errorf("scheduler shutdown timed out after %s", timeout)
	}
}

// workerLoop pulls the earliest due job, executes it, and idles on the poll
// interval when nothing is ready. The queue lock is held only for O(1) queue
// operations, never across processing.
func (s *Scheduler) workerLoop(workerNum int) {
	defer s.wg.Done()

	s.logger.Debug("Scheduler worker started", slog.Int("worker_num", workerNum))
	for {
		select {
		case <-s.stopChan:
			s.logger.Debug("Scheduler worker stopping", slog.Int("worker_num", workerNum))
			return
		default:
		}

		j := s.dequeueDue()
		if j == nil {
			select {
			case <-s.stopChan:
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}

		s.execute(j, workerNum)
	}
}

// dequeueDue pops the earliest job whose executeAt has passed, marking it
// RUNNING and charging one attempt. Returns nil when nothing is due.
func (s *Scheduler) dequeueDue() *job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.Len() == 0 || s.queue[0].executeAt.After(time.Now()) {
		return nil
	}
	j := heap.Pop(&s.queue).(*job)
	j.status = StatusRunning
	j.attempts++
	return j
}

func (s *Scheduler) execute(j *job, workerNum int) {
	s.logger.Info("Job started",
		slog.String("job_id", j.id),
		slog.Int("worker_num", workerNum),
		slog.Int("attempt", j.attempts),
	)

	var err error
	if j.target != TargetWaveform {
		err = domain.NewSchedulerError(fmt.Sprintf("unknown job target %q", j.target))
	} else {
		start := time.Now()
		_, err = s.processor.Process(context.Background(), j.payload)
		elapsed := time.Since(start).Seconds()
		s.mu.Lock()
		s.processedSeconds += elapsed
		s.processedCount++
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		j.status = StatusCompleted
		s.completed++
		s.logger.Info("Job completed",
			slog.String("job_id", j.id),
			slog.Int("attempts", j.attempts),
		)
		return
	}

	j.lastError = err.Error()

	if !domain.IsRetryable(err) {
		j.status = StatusFailed
		s.failed++
		s.logger.Error("Job failed permanently, error is not retryable",
			slog.String("job_id", j.id),
			slog.String("error", err.Error()),
		)
		return
	}

	if j.attempts >= j.maxAttempts {
		j.status = StatusFailed
		s.failed++
		s.logger.Error("Job failed permanently, attempts exhausted",
			slog.String("job_id", j.id),
			slog.Int("attempts", j.attempts),
			slog.String("error", err.Error()),
		)
		return
	}

	delay := s.backoff(j.attempts)
	j.executeAt = time.Now().Add(delay)
	j.status = StatusQueued
	j.seq = s.seq
	s.seq++
	heap.Push(&s.queue, j)
	s.retried++

	s.logger.Warn("Job failed, retrying with backoff",
		slog.String("job_id", j.id),
		slog.Int("attempt", j.attempts),
		slog.Int("max_attempts", j.maxAttempts),
		slog.Duration("backoff", delay),
		slog.String("error", err.Error()),
	)
}
