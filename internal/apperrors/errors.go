/*
Package apperrors defines the error taxonomy shared by every core
component: stream management, recording, storage, rotation, and
recovery.

Requirements Coverage:
- REQ-ERR-001: Structured error kinds with HTTP-style status mapping
- REQ-ERR-002: Error wrapping that preserves the original cause
*/
package apperrors

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies the broad error family a failure belongs to.
type Kind string

const (
	KindStreamNotFound Kind = "stream_not_found"
	KindConflict       Kind = "conflict"
	KindConfigError    Kind = "config_error"
	KindPipelineError  Kind = "pipeline_error"
	KindRecordingError Kind = "recording_error"
	KindStorageError   Kind = "storage_error"
	KindRotationError  Kind = "rotation_error"
	KindRecoveryError  Kind = "recovery_error"
)

// RecordingSubKind enumerates the RecordingError sub-kinds.
type RecordingSubKind string

const (
	RecordingElementCreation  RecordingSubKind = "element_creation"
	RecordingLinkError        RecordingSubKind = "link_error"
	RecordingBinAddError      RecordingSubKind = "bin_add_error"
	RecordingStateChangeError RecordingSubKind = "state_change_error"
	RecordingAlreadyRecording RecordingSubKind = "already_recording"
	RecordingNotRecording     RecordingSubKind = "not_recording"
	RecordingInvalidConfig    RecordingSubKind = "invalid_config"
	RecordingIO               RecordingSubKind = "io"
)

// StorageSubKind enumerates the StorageError sub-kinds.
type StorageSubKind string

const (
	StoragePathNotFound        StorageSubKind = "path_not_found"
	StorageInsufficientSpace   StorageSubKind = "insufficient_space"
	StorageAllPathsUnavailable StorageSubKind = "all_paths_unavailable"
	StorageIO                  StorageSubKind = "io"
)

// RotationSubKind enumerates the RotationError sub-kinds.
type RotationSubKind string

const (
	RotationDiskNotFound      RotationSubKind = "disk_not_found"
	RotationInProgress        RotationSubKind = "rotation_in_progress"
	RotationNoAlternativeDisk RotationSubKind = "no_alternative_disk"
	RotationMigrationFailed   RotationSubKind = "migration_failed"
)

// RecoverySubKind enumerates the RecoveryError sub-kinds.
type RecoverySubKind string

const (
	RecoveryMaxRetriesExceeded RecoverySubKind = "max_retries_exceeded"
	RecoveryNoHandler          RecoverySubKind = "no_handler"
	RecoveryNoSnapshot         RecoverySubKind = "no_snapshot"
	RecoveryTimeout            RecoverySubKind = "timeout"
	RecoveryCircuitBreakerOpen RecoverySubKind = "circuit_breaker_open"
	RecoveryFatalError         RecoverySubKind = "fatal_error"
	RecoveryResourceExhausted  RecoverySubKind = "resource_exhausted"
	RecoveryDependencyFailure  RecoverySubKind = "dependency_failure"
)

// Status is the HTTP-style status code attached to an error for API
// surfaces, independent of whatever transport actually carries it.
type Status int

const (
	StatusBadRequest          Status = 400
	StatusNotFound            Status = 404
	StatusConflict            Status = 409
	StatusValidationError     Status = 422
	StatusInternalError       Status = 500
	StatusServiceUnavailable  Status = 503
)

// Error is the structured error type used across the core. Op names the
// operation that failed (e.g. "stream.add", "recording.start"); Kind
// names the broad family; SubKind (optional) narrows it further; Err
// wraps the underlying cause when one exists.
type Error struct {
	Kind    Kind
	SubKind string
	Op      string
	Message string
	Status  Status
	Err     error
	Time    time.Time

	// Need/Available are populated for InsufficientSpace errors.
	Need      int64
	Available int64
}

func (e *Error) Error() string {
	if e.SubKind != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s[%s] %s: %s: %v", e.Kind, e.SubKind, e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s[%s] %s: %s", e.Kind, e.SubKind, e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compares by Kind and SubKind, a shallow-equality convention for
// sentinel-style structured errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.SubKind == t.SubKind
}

// MarshalJSON stamps the error with the time it is serialized.
func (e *Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(&struct {
		*alias
		Time string `json:"time"`
	}{
		alias: (*alias)(e),
		Time:  time.Now().Format(time.RFC3339),
	})
}

func newErr(kind Kind, status Status, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Status: status, Time: time.Now()}
}

func StreamNotFound(op, streamID string) *Error {
	return newErr(KindStreamNotFound, StatusNotFound, op, fmt.Sprintf("stream %q not found", streamID))
}

func Conflict(op, streamID string) *Error {
	return newErr(KindConflict, StatusConflict, op, fmt.Sprintf("stream %q already exists", streamID))
}

func ConfigError(op, hint string, err error) *Error {
	e := newErr(KindConfigError, StatusBadRequest, op, fmt.Sprintf("config validation failed at %q", hint))
	e.Err = err
	return e
}

func PipelineError(op, message string, err error) *Error {
	e := newErr(KindPipelineError, StatusInternalError, op, message)
	e.Err = err
	return e
}

func Recording(op string, sub RecordingSubKind, message string, err error) *Error {
	e := newErr(KindRecordingError, statusForRecording(sub), op, message)
	e.SubKind = string(sub)
	e.Err = err
	return e
}

func statusForRecording(sub RecordingSubKind) Status {
	switch sub {
	case RecordingAlreadyRecording, RecordingNotRecording:
		return StatusConflict
	case RecordingInvalidConfig:
		return StatusValidationError
	default:
		return StatusInternalError
	}
}

func Storage(op string, sub StorageSubKind, message string, err error) *Error {
	e := newErr(KindStorageError, StatusServiceUnavailable, op, message)
	e.SubKind = string(sub)
	e.Err = err
	return e
}

func InsufficientSpace(op string, need, available int64) *Error {
	e := newErr(KindStorageError, StatusServiceUnavailable, op,
		fmt.Sprintf("insufficient space: need %d, available %d", need, available))
	e.SubKind = string(StorageInsufficientSpace)
	e.Need = need
	e.Available = available
	return e
}

func AllPathsUnavailable(op string) *Error {
	e := newErr(KindStorageError, StatusServiceUnavailable, op, "no healthy storage paths available")
	e.SubKind = string(StorageAllPathsUnavailable)
	return e
}

func Rotation(op string, sub RotationSubKind, message string, err error) *Error {
	e := newErr(KindRotationError, StatusConflict, op, message)
	e.SubKind = string(sub)
	e.Err = err
	return e
}

func Recovery(op string, sub RecoverySubKind, message string, err error) *Error {
	status := StatusInternalError
	if sub == RecoveryCircuitBreakerOpen {
		status = StatusServiceUnavailable
	}
	e := newErr(KindRecoveryError, status, op, message)
	e.SubKind = string(sub)
	e.Err = err
	return e
}

// Has reports whether err is an *Error of the given kind (and, if
// sub != "", the given sub-kind too).
func Has(err error, kind Kind, sub string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == kind && (sub == "" || e.SubKind == sub) {
				return true
			}
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
