package pipeline

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/soundlib/waveform-be/internal/blob"
	"github.com/soundlib/waveform-be/internal/pipeline/domain"
	"github.com/soundlib/waveform-be/internal/waveform"
)

// The classify helpers pattern-match low-level collaborator failures into the
// taxonomy with messages an operator can act on. They are the only place raw
// errors from the blob store, decode tool, and metadata store are inspected.

func classifyRetrievalFailure(err error, location string) *domain.TaskError {
	switch {
	case errors.Is(err, blob.ErrNotFound):
		return domain.NewRetrievalError(domain.SubNotFound,
			fmt.Sprintf("source object %s does not exist", location), err)
	case os.IsPermission(err):
		return domain.NewRetrievalError(domain.SubAccessDenied,
			fmt.Sprintf("access denied reading source object %s", location), err)
	case isNetworkFailure(err):
		return domain.NewRetrievalError(domain.SubNetwork,
			fmt.Sprintf("network failure reading source object %s", location), err)
	default:
		return domain.NewRetrievalError(domain.SubUnexpected,
			fmt.Sprintf("unexpected failure reading source object %s", location), err)
	}
}

func classifyComputeFailure(err error) *domain.TaskError {
	var decodeErr *waveform.DecodeError
	switch {
	case errors.Is(err, waveform.ErrToolUnavailable):
		return domain.NewComputeError(domain.SubToolUnavailable,
			"audio decode tool is unavailable", err)
	case errors.Is(err, waveform.ErrNoData):
		return domain.NewComputeError(domain.SubNoData,
			"decoder produced no audio samples", err)
	case errors.Is(err, waveform.ErrDecodeTimeout):
		return domain.NewComputeError(domain.SubTimeout,
			"audio decoding exceeded its time budget", err)
	case errors.As(err, &decodeErr):
		sub := domain.SubUnsupportedFormat
		if looksCorrupt(decodeErr.Stderr) {
			sub = domain.SubCorruptInput
		}
		return domain.NewComputeError(sub,
			fmt.Sprintf("audio decoding failed: %s", decodeErr.Stderr), err)
	default:
		return domain.NewComputeError(domain.SubUnexpected,
			"unexpected failure computing waveform", err)
	}
}

func classifyPersistFailure(err error, path string) *domain.TaskError {
	switch {
	case os.IsPermission(err):
		return domain.NewPersistError(domain.SubAccessDenied,
			fmt.Sprintf("access denied writing artifact %s", path), err)
	case errors.Is(err, syscall.ENOSPC) || containsAny(err, "quota", "no space"):
		return domain.NewPersistError(domain.SubQuotaExceeded,
			fmt.Sprintf("storage quota exceeded writing artifact %s", path), err)
	case isNetworkFailure(err):
		return domain.NewPersistError(domain.SubNetwork,
			fmt.Sprintf("network failure writing artifact %s", path), err)
	default:
		return domain.NewPersistError(domain.SubUnexpected,
			fmt.Sprintf("unexpected failure writing artifact %s", path), err)
	}
}

func classifyRecordFailure(err error, message string) *domain.TaskError {
	switch {
	case errors.Is(err, driver.ErrBadConn) || containsAny(err, "connection refused", "connection reset", "broken pipe", "database is locked"):
		return domain.NewRecordError(domain.SubConnectionLost, message+": database connection lost", err)
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return domain.NewRecordError(domain.SubTimeout, message+": database timed out", err)
	default:
		return domain.NewRecordError(domain.SubUnexpected, message, err)
	}
}

func isNetworkFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func looksCorrupt(stderr string) bool {
	return containsFold(stderr, "invalid data") ||
		containsFold(stderr, "corrupt") ||
		containsFold(stderr, "malformed")
}

func containsAny(err error, needles ...string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range needles {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
