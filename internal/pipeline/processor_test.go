package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundlib/waveform-be/internal/blob"
	"github.com/soundlib/waveform-be/internal/metrics"
	"github.com/soundlib/waveform-be/internal/pipeline/domain"
	"github.com/soundlib/waveform-be/internal/waveform"
)

// stubExtractor returns canned samples or a canned error and counts calls.
type stubExtractor struct {
	samples []float32
	err     error
	calls   int
}

func (s *stubExtractor) Extract(ctx context.Context, sourcePath string, sampleCount int) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.samples, nil
}

// memArtifacts is an in-memory ArtifactStore keyed by (assetID, contentHash).
type memArtifacts struct {
	mu        sync.Mutex
	locations map[string]string
	findErr   error
	recordErr error
	finds     int
	records   int
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{locations: make(map[string]string)}
}

func (m *memArtifacts) Find(ctx context.Context, assetID, contentHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.findErr != nil {
		return "", m.findErr
	}
	return m.locations[assetID+"/"+contentHash], nil
}

func (m *memArtifacts) Record(ctx context.Context, assetID, location, contentHash string, byteSize int64, sampleCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records++
	if m.recordErr != nil {
		return m.recordErr
	}
	m.locations[assetID+"/"+contentHash] = location
	return nil
}

type processorFixture struct {
	processor *Processor
	blobs     *blob.MemoryStore
	artifacts *memArtifacts
	extractor *stubExtractor
	collector *metrics.Collector
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	f := &processorFixture{
		blobs:     blob.NewMemoryStore(),
		artifacts: newMemArtifacts(),
		extractor: &stubExtractor{samples: []float32{0.1, -0.4, 0.9}},
		collector: metrics.NewCollector(),
	}
	f.processor = NewProcessor(&Config{
		Blobs:     f.blobs,
		Artifacts: f.artifacts,
		Extractor: f.extractor,
		Metrics:   f.collector,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return f
}

// seedSource uploads content and returns a payload whose declared hash matches.
func (f *processorFixture) seedSource(t *testing.T, assetID string, content []byte) *domain.WaveformJobPayload {
	t.Helper()
	location, err := f.blobs.Put(context.Background(), "uploads/"+assetID+".wav", content, "audio/wav")
	require.NoError(t, err)
	sum := sha256.Sum256(content)
	return &domain.WaveformJobPayload{
		AssetID:           assetID,
		SourceLocation:    location,
		SourceContentHash: hex.EncodeToString(sum[:]),
	}
}

func TestProcessor_SuccessPath(t *testing.T) {
	f := newProcessorFixture(t)
	payload := f.seedSource(t, "asset-1", []byte("pcm-bytes"))
	baseline := f.blobs.PutCount()

	result, err := f.processor.Process(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, domain.ResultStatusCompleted, result.Status)
	assert.Equal(t, payload.AssetID+"/"+payload.SourceContentHash[:8]+".svg", result.ArtifactLocation)
	assert.Equal(t, 3, result.SampleCount)
	assert.Positive(t, result.ArtifactByteSize)

	svg, err := f.blobs.Get(context.Background(), result.ArtifactLocation)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), "<svg"))
	assert.Equal(t, int64(len(svg)), result.ArtifactByteSize)

	assert.Equal(t, baseline+1, f.blobs.PutCount())
	assert.Equal(t, 1, f.artifacts.records)

	snap := f.collector.Snapshot()
	assert.Equal(t, int64(1), snap.Requests)
	assert.Equal(t, int64(1), snap.Successes)
	assert.Equal(t, int64(0), snap.CacheHits)
}

func TestProcessor_SecondRunIsCacheHit(t *testing.T) {
	f := newProcessorFixture(t)
	payload := f.seedSource(t, "asset-1", []byte("pcm-bytes"))

	first, err := f.processor.Process(context.Background(), payload)
	require.NoError(t, err)
	putsAfterFirst := f.blobs.PutCount()
	callsAfterFirst := f.extractor.calls

	second, err := f.processor.Process(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, domain.ResultStatusCacheHit, second.Status)
	assert.Equal(t, first.ArtifactLocation, second.ArtifactLocation)

	// The cache hit performs no retrieval, no decode, and no write.
	assert.Equal(t, putsAfterFirst, f.blobs.PutCount())
	assert.Equal(t, callsAfterFirst, f.extractor.calls)
	assert.Equal(t, 1, f.artifacts.records)

	snap := f.collector.Snapshot()
	assert.Equal(t, int64(2), snap.Successes)
	assert.Equal(t, int64(1), snap.CacheHits)
}

func TestProcessor_MissingFieldFailsBeforeAnyCollaborator(t *testing.T) {
	f := newProcessorFixture(t)

	_, err := f.processor.Process(context.Background(), &domain.WaveformJobPayload{
		AssetID:        "asset-1",
		SourceLocation: "uploads/asset-1.wav",
		// SourceContentHash deliberately absent.
	})

	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.False(t, domain.IsRetryable(err))

	assert.Equal(t, 0, f.artifacts.finds)
	assert.Equal(t, 0, f.extractor.calls)
	assert.Equal(t, 0, f.blobs.PutCount())
}

func TestProcessor_HashMismatchIsIntegrityError(t *testing.T) {
	f := newProcessorFixture(t)
	payload := f.seedSource(t, "asset-1", []byte("original"))
	payload.SourceContentHash = strings.Repeat("ab", 32) // declared hash of different content

	_, err := f.processor.Process(context.Background(), payload)

	require.Error(t, err)
	assert.Equal(t, domain.KindIntegrity, domain.KindOf(err))
	assert.False(t, domain.IsRetryable(err))

	// Nothing persisted, nothing recorded, nothing decoded.
	assert.Equal(t, 1, f.blobs.PutCount()) // only the seeded source upload
	assert.Equal(t, 0, f.artifacts.records)
	assert.Equal(t, 0, f.extractor.calls)
}

func TestProcessor_DeclaredHashIsNormalized(t *testing.T) {
	f := newProcessorFixture(t)
	payload := f.seedSource(t, "asset-1", []byte("pcm-bytes"))
	payload.SourceContentHash = "  " + strings.ToUpper(payload.SourceContentHash) + " "

	result, err := f.processor.Process(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, domain.ResultStatusCompleted, result.Status)
}

func TestProcessor_MissingSourceIsRetryableRetrievalError(t *testing.T) {
	f := newProcessorFixture(t)
	sum := sha256.Sum256([]byte("anything"))

	_, err := f.processor.Process(context.Background(), &domain.WaveformJobPayload{
		AssetID:           "asset-1",
		SourceLocation:    "uploads/never-uploaded.wav",
		SourceContentHash: hex.EncodeToString(sum[:]),
	})

	require.Error(t, err)
	assert.Equal(t, domain.KindRetrieval, domain.KindOf(err))
	assert.True(t, domain.IsRetryable(err))
	var taskErr *domain.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, domain.SubNotFound, taskErr.SubCause)
}

func TestProcessor_ComputeFailureClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		subCause string
	}{
		{"tool unavailable", waveform.ErrToolUnavailable, domain.SubToolUnavailable},
		{"no data", waveform.ErrNoData, domain.SubNoData},
		{"timeout", waveform.ErrDecodeTimeout, domain.SubTimeout},
		{
			"unsupported format",
			&waveform.DecodeError{ExitCode: 1, Stderr: "Unknown format for stream 0"},
			domain.SubUnsupportedFormat,
		},
		{
			"corrupt input",
			&waveform.DecodeError{ExitCode: 1, Stderr: "Invalid data found when processing input"},
			domain.SubCorruptInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProcessorFixture(t)
			f.extractor.err = tt.err
			payload := f.seedSource(t, "asset-1", []byte("pcm-bytes"))
			baseline := f.blobs.PutCount()

			_, err := f.processor.Process(context.Background(), payload)

			require.Error(t, err)
			assert.Equal(t, domain.KindCompute, domain.KindOf(err))
			assert.True(t, domain.IsRetryable(err))
			var taskErr *domain.TaskError
			require.ErrorAs(t, err, &taskErr)
			assert.Equal(t, tt.subCause, taskErr.SubCause)

			assert.Equal(t, baseline, f.blobs.PutCount())
			assert.Equal(t, 0, f.artifacts.records)
		})
	}
}

func TestProcessor_LookupFailureIsRecordError(t *testing.T) {
	f := newProcessorFixture(t)
	f.artifacts.findErr = errors.New("dial tcp: connection refused")
	payload := f.seedSource(t, "asset-1", []byte("pcm-bytes"))

	_, err := f.processor.Process(context.Background(), payload)

	require.Error(t, err)
	assert.Equal(t, domain.KindRecord, domain.KindOf(err))
	assert.True(t, domain.IsRetryable(err))
	var taskErr *domain.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, domain.SubConnectionLost, taskErr.SubCause)
}

func TestProcessor_DuplicateRecordReusesExistingArtifact(t *testing.T) {
	f := newProcessorFixture(t)
	payload := f.seedSource(t, "asset-1", []byte("pcm-bytes"))

	// A concurrent worker committed the row between our lookup and our insert.
	f.artifacts.recordErr = errors.New(`pq: duplicate key value violates unique constraint "waveform_artifacts_pkey" (SQLSTATE 23505): UNIQUE constraint failed`)
	f.artifacts.locations[payload.AssetID+"/"+payload.SourceContentHash] = "asset-1/someone.svg"

	result, err := f.processor.Process(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, domain.ResultStatusCompleted, result.Status)
	assert.Equal(t, "asset-1/someone.svg", result.ArtifactLocation)

	snap := f.collector.Snapshot()
	assert.Equal(t, int64(1), snap.Successes)
}

func TestProcessor_ExactlyOneMetricsUpdatePerCall(t *testing.T) {
	f := newProcessorFixture(t)
	payload := f.seedSource(t, "asset-1", []byte("pcm-bytes"))

	_, _ = f.processor.Process(context.Background(), payload)                          // success
	_, _ = f.processor.Process(context.Background(), payload)                          // cache hit
	_, _ = f.processor.Process(context.Background(), &domain.WaveformJobPayload{})     // validation failure
	f.extractor.err = waveform.ErrNoData
	payload2 := f.seedSource(t, "asset-2", []byte("other-bytes"))
	_, _ = f.processor.Process(context.Background(), payload2) // compute failure

	snap := f.collector.Snapshot()
	assert.Equal(t, int64(4), snap.Requests)
	assert.Equal(t, int64(2), snap.Successes)
	assert.Equal(t, int64(2), snap.Failures)
	assert.Equal(t, int64(1), snap.CacheHits)
	assert.Equal(t, 4, snap.Timing.Count)
	assert.Equal(t, int64(1), errorKindCount(snap, string(domain.KindValidation)))
	assert.Equal(t, int64(1), errorKindCount(snap, string(domain.KindCompute)))
}

func errorKindCount(snap metrics.Snapshot, kind string) int64 {
	for _, bucket := range snap.ErrorKinds {
		if bucket.Kind == kind {
			return bucket.Count
		}
	}
	return 0
}
