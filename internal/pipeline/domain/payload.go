package domain

// WaveformJobPayload describes one artifact-generation request. All fields are
// required; a missing field is a non-retryable validation failure.
type WaveformJobPayload struct {
	AssetID           string `json:"assetId"`
	SourceLocation    string `json:"sourceLocation"`
	SourceContentHash string `json:"sourceContentHash"`
}

// Validate checks that every required field is present.
func (p *WaveformJobPayload) Validate() error {
	if p.AssetID == "" {
		return NewValidationError("assetId is required")
	}
	if p.SourceLocation == "" {
		return NewValidationError("sourceLocation is required")
	}
	if p.SourceContentHash == "" {
		return NewValidationError("sourceContentHash is required")
	}
	return nil
}
