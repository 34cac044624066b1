package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskError_RetryabilityByKind(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name      string
		err       *TaskError
		kind      ErrorKind
		retryable bool
	}{
		{"validation", NewValidationError("missing field"), KindValidation, false},
		{"authentication", NewAuthenticationError("bad headers"), KindAuthentication, false},
		{"integrity", NewIntegrityError("hash mismatch"), KindIntegrity, false},
		{"scheduler", NewSchedulerError("unknown target"), KindScheduler, false},
		{"retrieval", NewRetrievalError(SubNotFound, "gone", cause), KindRetrieval, true},
		{"compute", NewComputeError(SubNoData, "silence", cause), KindCompute, true},
		{"persist", NewPersistError(SubQuotaExceeded, "full", cause), KindPersist, true},
		{"record", NewRecordError(SubConnectionLost, "db down", cause), KindRecord, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestTaskError_MessageIncludesSubCause(t *testing.T) {
	err := NewComputeError(SubCorruptInput, "decode failed", errors.New("exit 1"))
	assert.Equal(t, "compute_error (corrupt_input): decode failed", err.Error())

	plain := NewValidationError("assetId is required")
	assert.Equal(t, "validation_error: assetId is required", plain.Error())
}

func TestTaskError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("read tcp: connection reset")
	err := NewRetrievalError(SubNetwork, "network failure", cause)

	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable_WrappedAndForeignErrors(t *testing.T) {
	wrapped := fmt.Errorf("while processing: %w", NewPersistError(SubUnexpected, "write failed", nil))
	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, KindPersist, KindOf(wrapped))

	assert.False(t, IsRetryable(errors.New("not ours")))
	assert.False(t, IsRetryable(nil))
	assert.Equal(t, KindScheduler, KindOf(errors.New("not ours")))
}
