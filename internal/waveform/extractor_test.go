package waveform

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFakeDecoder installs a shell script standing in for the decode binary.
func writeFakeDecoder(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake decoder scripts require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-decoder")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

// writePCMFixture encodes the samples as little-endian float32 on disk.
func writePCMFixture(t *testing.T, samples []float32) string {
	t.Helper()
	buf := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	path := filepath.Join(t.TempDir(), "samples.f32le")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestExtractor_ExtractDecodesPCMStream(t *testing.T) {
	fixture := writePCMFixture(t, []float32{0.25, -0.5, 1.0, 0.0})
	bin := writeFakeDecoder(t, `cat "`+fixture+`"`)

	e := NewExtractor(bin, 5*time.Second, testLogger())
	samples, err := e.Extract(context.Background(), "input.wav", 1000)
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, -0.5, 1.0, 0.0}, samples)
}

func TestExtractor_ExtractDecimatesLongStreams(t *testing.T) {
	raw := make([]float32, 500)
	for i := range raw {
		raw[i] = 0.5
	}
	fixture := writePCMFixture(t, raw)
	bin := writeFakeDecoder(t, `cat "`+fixture+`"`)

	e := NewExtractor(bin, 5*time.Second, testLogger())
	samples, err := e.Extract(context.Background(), "input.wav", 100)
	require.NoError(t, err)

	assert.Len(t, samples, 100)
}

func TestExtractor_NonFiniteSamplesBecomeSilence(t *testing.T) {
	fixture := writePCMFixture(t, []float32{
		float32(math.NaN()),
		float32(math.Inf(1)),
		0.5,
	})
	bin := writeFakeDecoder(t, `cat "`+fixture+`"`)

	e := NewExtractor(bin, 5*time.Second, testLogger())
	samples, err := e.Extract(context.Background(), "input.wav", 1000)
	require.NoError(t, err)

	assert.Equal(t, []float32{0, 0, 0.5}, samples)
}

func TestExtractor_EmptyOutputReturnsErrNoData(t *testing.T) {
	bin := writeFakeDecoder(t, `exit 0`)

	e := NewExtractor(bin, 5*time.Second, testLogger())
	_, err := e.Extract(context.Background(), "input.wav", 1000)

	assert.ErrorIs(t, err, ErrNoData)
}

func TestExtractor_NonZeroExitReturnsDecodeError(t *testing.T) {
	bin := writeFakeDecoder(t, `echo "Invalid data found when processing input" >&2; exit 1`)

	e := NewExtractor(bin, 5*time.Second, testLogger())
	_, err := e.Extract(context.Background(), "input.wav", 1000)

	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, 1, decodeErr.ExitCode)
	assert.Contains(t, decodeErr.Stderr, "Invalid data")
}

func TestExtractor_TimeoutReturnsErrDecodeTimeout(t *testing.T) {
	bin := writeFakeDecoder(t, `sleep 5`)

	e := NewExtractor(bin, 100*time.Millisecond, testLogger())
	_, err := e.Extract(context.Background(), "input.wav", 1000)

	assert.ErrorIs(t, err, ErrDecodeTimeout)
}

func TestExtractor_MissingBinaryReturnsErrToolUnavailable(t *testing.T) {
	e := NewExtractor(filepath.Join(t.TempDir(), "no-such-decoder"), time.Second, testLogger())
	_, err := e.Extract(context.Background(), "input.wav", 1000)

	assert.ErrorIs(t, err, ErrToolUnavailable)
}
