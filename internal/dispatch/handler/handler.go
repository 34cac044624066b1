package handler

import (
	"log/slog"

	"github.com/soundlib/waveform-be/internal/auth"
	"github.com/soundlib/waveform-be/internal/metrics"
	"github.com/soundlib/waveform-be/internal/scheduler"
)

// Dependencies holds everything the HTTP handlers need. Scheduler is nil when
// the in-process scheduler is disabled; its routes are then not registered.
type Dependencies struct {
	Logger        *slog.Logger
	Processor     scheduler.Processor
	Authenticator *auth.Authenticator
	Metrics       *metrics.Collector
	Scheduler     *scheduler.Scheduler
}
