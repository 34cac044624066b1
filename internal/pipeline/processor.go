package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/soundlib/waveform-be/internal/artifacts"
	"github.com/soundlib/waveform-be/internal/blob"
	"github.com/soundlib/waveform-be/internal/metrics"
	"github.com/soundlib/waveform-be/internal/pipeline/domain"
	"github.com/soundlib/waveform-be/internal/waveform"
)

// ArtifactStore is the metadata-store contract the pipeline depends on. Find
// returns an empty location when no record exists.
type ArtifactStore interface {
	Find(ctx context.Context, assetID, contentHash string) (string, error)
	Record(ctx context.Context, assetID, location, contentHash string, byteSize int64, sampleCount int) error
}

// Extractor produces a bounded amplitude sequence from a decoded audio file.
type Extractor interface {
	Extract(ctx context.Context, sourcePath string, sampleCount int) ([]float32, error)
}

// Config holds the processor's collaborators and tuning knobs.
type Config struct {
	Blobs        blob.Store
	Artifacts    ArtifactStore
	Extractor    Extractor
	Metrics      *metrics.Collector
	Logger       *slog.Logger
	SampleCount  int
	RenderWidth  int
	RenderHeight int
}

// Processor runs the idempotent waveform pipeline for a single job:
// idempotency check, retrieve, verify, compute, persist, record. It is the
// single boundary that reclassifies collaborator failures into the error
// taxonomy; nothing raw crosses into the scheduler or HTTP layer.
type Processor struct {
	blobs        blob.Store
	artifacts    ArtifactStore
	extractor    Extractor
	metrics      *metrics.Collector
	logger       *slog.Logger
	sampleCount  int
	renderWidth  int
	renderHeight int
}

// NewProcessor creates a Processor from explicit collaborators. No ambient
// state: independent processors can coexist in tests.
func NewProcessor(cfg *Config) *Processor {
	sampleCount := cfg.SampleCount
	if sampleCount <= 0 {
		sampleCount = waveform.DefaultSampleCount
	}
	renderWidth := cfg.RenderWidth
	if renderWidth <= 0 {
		renderWidth = waveform.DefaultRenderWidth
	}
	renderHeight := cfg.RenderHeight
	if renderHeight <= 0 {
		renderHeight = waveform.DefaultRenderHeight
	}
	return &Processor{
		blobs:        cfg.Blobs,
		artifacts:    cfg.Artifacts,
		extractor:    cfg.Extractor,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
		sampleCount:  sampleCount,
		renderWidth:  renderWidth,
		renderHeight: renderHeight,
	}
}

// Process executes the six-step pipeline for one payload. At most one
// artifact is computed per distinct (assetId, sourceContentHash) pair; later
// calls short-circuit on the idempotency check and return the recorded
// location unchanged. Exactly one metrics update is recorded per call.
func (p *Processor) Process(ctx context.Context, payload *domain.WaveformJobPayload) (result *domain.ProcessingResult, err error) {
	start := time.Now()
	defer func() {
		elapsed := time.Since(start).Seconds()
		if err != nil {
			p.metrics.RecordOutcome(false, false, elapsed, string(domain.KindOf(err)))
		} else {
			p.metrics.RecordOutcome(true, result.Status == domain.ResultStatusCacheHit, elapsed, "")
		}
	}()

	if err := payload.Validate(); err != nil {
		return nil, err
	}
	declaredHash := strings.ToLower(strings.TrimSpace(payload.SourceContentHash))

	// Step 1: idempotency check. A hit returns without touching the blob
	// store at all.
	existing, err := p.artifacts.Find(ctx, payload.AssetID, declaredHash)
	if err != nil {
		return nil, classifyRecordFailure(err, "artifact lookup failed")
	}
	if existing != "" {
		p.logger.Info("Artifact already exists, skipping processing",
			slog.String("asset_id", payload.AssetID),
			slog.String("location", existing),
		)
		return &domain.ProcessingResult{
			Status:                domain.ResultStatusCacheHit,
			ArtifactLocation:      existing,
			ProcessingTimeSeconds: time.Since(start).Seconds(),
		}, nil
	}

	// Step 2: retrieve the source bytes into a scratch location whose
	// lifetime is bounded to this call.
	data, err := p.blobs.Get(ctx, payload.SourceLocation)
	if err != nil {
		return nil, classifyRetrievalFailure(err, payload.SourceLocation)
	}

	scratchDir, err := os.MkdirTemp("", "waveform-scratch-")
	if err != nil {
		return nil, domain.NewRetrievalError(domain.SubUnexpected, "failed to allocate scratch directory", err)
	}
	defer os.RemoveAll(scratchDir)

	sourcePath := filepath.Join(scratchDir, "source")
	if err := os.WriteFile(sourcePath, data, 0o600); err != nil {
		return nil, domain.NewRetrievalError(domain.SubUnexpected, "failed to stage source bytes", err)
	}

	// Step 3: verify the retrieved bytes against the declared hash. A
	// mismatch means the source changed between job creation and execution;
	// processing it would produce an artifact for the wrong content.
	sum := sha256.Sum256(data)
	actualHash := hex.EncodeToString(sum[:])
	if actualHash != declaredHash {
		return nil, domain.NewIntegrityError(fmt.Sprintf(
			"content hash mismatch for asset %s: declared %s, got %s",
			payload.AssetID, declaredHash, actualHash,
		))
	}

	// Step 4: compute the waveform.
	samples, err := p.extractor.Extract(ctx, sourcePath, p.sampleCount)
	if err != nil {
		return nil, classifyComputeFailure(err)
	}
	svg := waveform.Render(samples, p.renderWidth, p.renderHeight)

	// Step 5: persist at a content-addressed path so identical content
	// reuses the same location.
	artifactPath := fmt.Sprintf("%s/%s.svg", payload.AssetID, actualHash[:8])
	location, err := p.blobs.Put(ctx, artifactPath, []byte(svg), "image/svg+xml")
	if err != nil {
		return nil, classifyPersistFailure(err, artifactPath)
	}

	// Step 6: record the durable metadata future idempotency checks rely on.
	err = p.artifacts.Record(ctx, payload.AssetID, location, actualHash, int64(len(svg)), len(samples))
	if err != nil {
		if artifacts.IsDuplicate(err) {
			// A concurrent worker recorded first. The blob write above is
			// content-addressed, so both wrote the same artifact; return the
			// recorded location.
			p.logger.Warn("Concurrent duplicate record, reusing existing artifact",
				slog.String("asset_id", payload.AssetID),
				slog.String("content_hash", actualHash),
			)
			if existing, findErr := p.artifacts.Find(ctx, payload.AssetID, declaredHash); findErr == nil && existing != "" {
				location = existing
			}
		} else {
			return nil, classifyRecordFailure(err, "failed to record artifact")
		}
	}

	p.logger.Info("Waveform artifact generated",
		slog.String("asset_id", payload.AssetID),
		slog.String("location", location),
		slog.Int("sample_count", len(samples)),
		slog.Int("byte_size", len(svg)),
	)

	return &domain.ProcessingResult{
		Status:                domain.ResultStatusCompleted,
		ArtifactLocation:      location,
		ProcessingTimeSeconds: time.Since(start).Seconds(),
		ArtifactByteSize:      int64(len(svg)),
		SampleCount:           len(samples),
	}, nil
}
