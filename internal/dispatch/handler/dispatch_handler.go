package handler

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/soundlib/waveform-be/internal/auth"
	"github.com/soundlib/waveform-be/internal/dispatch/dto"
	"github.com/soundlib/waveform-be/internal/metrics"
	"github.com/soundlib/waveform-be/internal/pipeline/domain"
	"github.com/soundlib/waveform-be/internal/scheduler"
)

// metricsSummaryEvery is the request cadence for the background metrics
// summary log.
const metricsSummaryEvery = 10

// DispatchHandler serves the externally managed dispatcher's entry point. It
// performs no retries: the caller owns redelivery.
type DispatchHandler struct {
	logger        *slog.Logger
	processor     scheduler.Processor
	authenticator *auth.Authenticator
	metrics       *metrics.Collector
	processed     atomic.Int64
}

// NewDispatchHandler creates a DispatchHandler instance.
func NewDispatchHandler(deps *Dependencies) *DispatchHandler {
	return &DispatchHandler{
		logger:        deps.Logger,
		processor:     deps.Processor,
		authenticator: deps.Authenticator,
		metrics:       deps.Metrics,
	}
}

// HandleWaveformTask handles POST /tasks/waveform. The perimeter check runs
// before the payload is touched; a failed check short-circuits with zero side
// effects. Processing is synchronous within the request cycle.
func (h *DispatchHandler) HandleWaveformTask(c *gin.Context) {
	if !h.authenticator.Validate(c.Request.Header) {
		c.JSON(http.StatusUnauthorized, dto.DispatchResponse{
			Error:   string(domain.KindAuthentication),
			Message: "request failed dispatcher perimeter validation",
		})
		return
	}

	var payload domain.WaveformJobPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("Dispatch request with malformed body",
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, dto.DispatchResponse{
			Error:   string(domain.KindValidation),
			Message: "request body is not valid JSON for a waveform job",
		})
		return
	}

	result, err := h.processor.Process(c.Request.Context(), &payload)
	h.maybeLogSummary()

	if err != nil {
		kind := domain.KindOf(err)
		// Retryable failures return 500 so the dispatcher redelivers.
		// Non-retryable failures return 200 with success=false, which stops
		// redelivery of work that can never succeed.
		status := http.StatusOK
		if domain.IsRetryable(err) {
			status = http.StatusInternalServerError
		}
		h.logger.Error("Dispatch processing failed",
			slog.String("asset_id", payload.AssetID),
			slog.String("kind", string(kind)),
			slog.Bool("retryable", domain.IsRetryable(err)),
			slog.String("error", err.Error()),
		)
		c.JSON(status, dto.DispatchResponse{
			Error:   string(kind),
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.DispatchResponse{
		Success: true,
		Result:  result,
	})
}

// GetMetrics handles GET /metricz with a consistent collector snapshot.
func (h *DispatchHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// maybeLogSummary emits a metrics summary every metricsSummaryEvery processed
// requests, off the response path.
func (h *DispatchHandler) maybeLogSummary() {
	if h.processed.Add(1)%metricsSummaryEvery != 0 {
		return
	}
	go func() {
		snap := h.metrics.Snapshot()
		h.logger.Info("Processing metrics summary",
			slog.Int64("requests", snap.Requests),
			slog.Int64("successes", snap.Successes),
			slog.Int64("failures", snap.Failures),
			slog.Int64("cache_hits", snap.CacheHits),
			slog.Float64("avg_seconds", snap.Timing.Average),
		)
	}()
}
