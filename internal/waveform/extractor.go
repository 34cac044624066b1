package waveform

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strings"
	"time"
)

// DefaultSampleCount is the target amplitude resolution when the caller does
// not request one.
const DefaultSampleCount = 1000

var (
	// ErrToolUnavailable is returned when the decode binary is missing or
	// cannot be started.
	ErrToolUnavailable = errors.New("decode tool unavailable")

	// ErrNoData is returned when decoding succeeds but yields zero samples.
	ErrNoData = errors.New("decoder produced no samples")

	// ErrDecodeTimeout is returned when decoding exceeds the configured
	// wall-clock budget.
	ErrDecodeTimeout = errors.New("decode timed out")
)

// DecodeError carries the decode tool's diagnostic output for a non-zero
// exit. The pipeline classifies it into unsupported-format vs corrupt-input
// from the stderr text.
type DecodeError struct {
	ExitCode int
	Stderr   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode failed (exit %d): %s", e.ExitCode, e.Stderr)
}

// Extractor decodes audio files through an external tool and reduces the
// resulting PCM stream to a bounded amplitude sequence. It holds no mutable
// state and is safe for concurrent use.
type Extractor struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewExtractor returns an extractor invoking the given decode binary
// ("ffmpeg" when empty) with the given per-invocation timeout.
func NewExtractor(binary string, timeout time.Duration, logger *slog.Logger) *Extractor {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Extractor{binary: binary, timeout: timeout, logger: logger}
}

// Extract decodes the file at sourcePath down-mixed to one channel as raw
// float32 little-endian PCM, then decimates to at most sampleCount values.
// The result length is min(available, sampleCount), never more.
func (e *Extractor) Extract(ctx context.Context, sourcePath string, sampleCount int) ([]float32, error) {
	if sampleCount <= 0 {
		sampleCount = DefaultSampleCount
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.binary,
		"-v", "error",
		"-i", sourcePath,
		"-ac", "1",
		"-map", "0:a:0",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrToolUnavailable, e.binary)
		}
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w after %s", ErrDecodeTimeout, e.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &DecodeError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}

	raw := stdout.Bytes()
	total := len(raw) / 4
	if total == 0 {
		return nil, ErrNoData
	}

	samples := parseSamples(raw, total)
	result := Decimate(samples, sampleCount)

	e.logger.Debug("Audio decoded",
		slog.String("source", sourcePath),
		slog.Int("raw_samples", total),
		slog.Int("kept_samples", len(result)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// parseSamples converts the raw little-endian byte stream into floats,
// replacing non-finite values with silence.
func parseSamples(raw []byte, total int) []float32 {
	samples := make([]float32, total)
	for i := 0; i < total; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		v := math.Float32frombits(bits)
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			v = 0
		}
		samples[i] = v
	}
	return samples
}

// Decimate reduces samples to at most n values by selecting at a uniform
// stride of len/n with nearest-index selection. No interpolation or
// anti-aliasing is applied. When fewer than n samples exist, all are
// returned unchanged.
func Decimate(samples []float32, n int) []float32 {
	if n <= 0 || len(samples) <= n {
		return samples
	}
	stride := float64(len(samples)) / float64(n)
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * stride)
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		out[i] = samples[idx]
	}
	return out
}
