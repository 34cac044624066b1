package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable machine-readable tag attached to every pipeline
// failure. These values are part of the HTTP response contract and must not
// change between releases.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation_error"
	KindAuthentication ErrorKind = "authentication_error"
	KindIntegrity      ErrorKind = "integrity_error"
	KindRetrieval      ErrorKind = "retrieval_error"
	KindCompute        ErrorKind = "compute_error"
	KindPersist        ErrorKind = "persist_error"
	KindRecord         ErrorKind = "record_error"
	KindScheduler      ErrorKind = "scheduler_error"
)

// Sub-cause values refine a kind with the classified low-level failure.
const (
	SubAccessDenied      = "access_denied"
	SubNotFound          = "not_found"
	SubNetwork           = "network"
	SubQuotaExceeded     = "quota_exceeded"
	SubToolUnavailable   = "tool_unavailable"
	SubUnsupportedFormat = "unsupported_format"
	SubCorruptInput      = "corrupt_input"
	SubNoData            = "no_data"
	SubTimeout           = "timeout"
	SubConnectionLost    = "connection_lost"
	SubDuplicate         = "duplicate"
	SubUnexpected        = "unexpected"
)

// TaskError is the single error type that crosses out of the processing
// pipeline. Collaborator failures are reclassified into one of these before
// reaching the scheduler or HTTP layer; nothing raw propagates further up.
type TaskError struct {
	Kind      ErrorKind
	SubCause  string
	Message   string
	Retryable bool
	Err       error
}

func (e *TaskError) Error() string {
	if e.SubCause != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.SubCause, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a malformed or incomplete payload. Never retried.
func NewValidationError(message string) *TaskError {
	return &TaskError{Kind: KindValidation, Message: message}
}

// NewAuthenticationError reports a failed perimeter check. Never retried.
func NewAuthenticationError(message string) *TaskError {
	return &TaskError{Kind: KindAuthentication, Message: message}
}

// NewIntegrityError reports a content-hash mismatch between the declared and
// retrieved source bytes. Never retried: the input itself is stale.
func NewIntegrityError(message string) *TaskError {
	return &TaskError{Kind: KindIntegrity, Message: message}
}

// NewRetrievalError wraps a blob-store read failure.
func NewRetrievalError(subCause, message string, err error) *TaskError {
	return &TaskError{Kind: KindRetrieval, SubCause: subCause, Message: message, Retryable: true, Err: err}
}

// NewComputeError wraps a waveform extraction failure.
func NewComputeError(subCause, message string, err error) *TaskError {
	return &TaskError{Kind: KindCompute, SubCause: subCause, Message: message, Retryable: true, Err: err}
}

// NewPersistError wraps a blob-store write failure.
func NewPersistError(subCause, message string, err error) *TaskError {
	return &TaskError{Kind: KindPersist, SubCause: subCause, Message: message, Retryable: true, Err: err}
}

// NewRecordError wraps a metadata-store write failure.
func NewRecordError(subCause, message string, err error) *TaskError {
	return &TaskError{Kind: KindRecord, SubCause: subCause, Message: message, Retryable: true, Err: err}
}

// NewSchedulerError reports an unknown or malformed job type. Never retried.
func NewSchedulerError(message string) *TaskError {
	return &TaskError{Kind: KindScheduler, Message: message}
}

// IsRetryable reports whether err should be re-attempted. Errors outside the
// taxonomy are treated as non-retryable, matching how unknown failures are
// handled at the delivery layer.
func IsRetryable(err error) bool {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Retryable
	}
	return false
}

// KindOf extracts the taxonomy kind from err, or KindScheduler when the error
// did not originate in the pipeline.
func KindOf(err error) ErrorKind {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.Kind
	}
	return KindScheduler
}
