package domain

// Processing outcome status values.
const (
	ResultStatusCacheHit  = "cache_hit"
	ResultStatusCompleted = "completed"
)

// ProcessingResult is returned by the pipeline on success. CacheHit results
// carry the previously recorded artifact location and zero compute stats.
type ProcessingResult struct {
	Status                string  `json:"status"`
	ArtifactLocation      string  `json:"artifactLocation"`
	ProcessingTimeSeconds float64 `json:"processingTimeSeconds"`
	ArtifactByteSize      int64   `json:"artifactByteSize"`
	SampleCount           int     `json:"sampleCount"`
}
