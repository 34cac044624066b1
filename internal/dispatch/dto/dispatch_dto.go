package dto

import "github.com/soundlib/waveform-be/internal/pipeline/domain"

// DispatchResponse is the envelope returned for every dispatch outcome. Error
// carries the stable machine-readable kind tag; Message is human-readable.
type DispatchResponse struct {
	Success bool                     `json:"success"`
	Result  *domain.ProcessingResult `json:"result,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Message string                   `json:"message,omitempty"`
}

// EnqueueJobRequest is the local-scheduler front door's request body.
type EnqueueJobRequest struct {
	AssetID           string `json:"assetId" binding:"required"`
	SourceLocation    string `json:"sourceLocation" binding:"required"`
	SourceContentHash string `json:"sourceContentHash" binding:"required"`
	DelaySeconds      int    `json:"delaySeconds"`
}

// EnqueueJobResponse acknowledges an accepted job.
type EnqueueJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}
