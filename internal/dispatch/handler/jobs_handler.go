package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/soundlib/waveform-be/internal/dispatch/dto"
	"github.com/soundlib/waveform-be/internal/pipeline/domain"
	"github.com/soundlib/waveform-be/internal/scheduler"
)

// JobsHandler serves the local front door backed by the in-process scheduler,
// for environments that run without an external dispatcher.
type JobsHandler struct {
	logger *slog.Logger
	sched  *scheduler.Scheduler
}

// NewJobsHandler creates a JobsHandler instance.
func NewJobsHandler(deps *Dependencies) *JobsHandler {
	return &JobsHandler{
		logger: deps.Logger,
		sched:  deps.Scheduler,
	}
}

// EnqueueJob handles POST /api/v1/jobs. The job is accepted and queued; no
// processing happens inline.
func (h *JobsHandler) EnqueueJob(c *gin.Context) {
	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid enqueue request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid request body",
		})
		return
	}

	payload := &domain.WaveformJobPayload{
		AssetID:           req.AssetID,
		SourceLocation:    req.SourceLocation,
		SourceContentHash: req.SourceContentHash,
	}
	if err := payload.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	delay := time.Duration(req.DelaySeconds) * time.Second
	jobID, err := h.sched.Enqueue(payload, scheduler.TargetWaveform, delay)
	if err != nil {
		h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "scheduler is not accepting new jobs",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueJobResponse{
		JobID:  jobID,
		Status: scheduler.StatusQueued,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id, exposing lifecycle state,
// attempts so far, and the last failure reason.
func (h *JobsHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	status, ok := h.sched.GetStatus(jobID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetSchedulerStats handles GET /api/v1/scheduler/stats.
func (h *JobsHandler) GetSchedulerStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.sched.Stats())
}
