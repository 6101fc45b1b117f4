package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers and services MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidKind       ErrorCode = "validation_invalid_kind"
	ErrCodeValidationInvalidJSON       ErrorCode = "validation_invalid_json"
	ErrCodeValidationMissingField      ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidCategory   ErrorCode = "validation_invalid_category"
	ErrCodeValidationInvalidRecurrence ErrorCode = "validation_invalid_recurrence"
	ErrCodeValidationInvalidWindow     ErrorCode = "validation_execution_window_invalid"
	ErrCodeValidationInvalidTimezone   ErrorCode = "validation_invalid_timezone"
	ErrCodeValidationBatchSize         ErrorCode = "validation_batch_size_exceeded"
	ErrCodeValidationUnmappedField     ErrorCode = "validation_unmapped_field"
	ErrCodeValidationInvalidCursor     ErrorCode = "validation_invalid_cursor"

	// Not Found (404)
	ErrCodeNotFoundResource ErrorCode = "not_found_resource"
	ErrCodeNotFoundSchedule ErrorCode = "not_found_schedule"
	ErrCodeNotFoundJob      ErrorCode = "not_found_job"
	ErrCodeNotFoundProblem  ErrorCode = "not_found_problem"

	// Conflict (409) — terminal for the current attempt; caller must re-read.
	ErrCodeConflictStaleResource ErrorCode = "conflict_stale_resource"
	ErrCodeConflictJobState      ErrorCode = "conflict_job_state"
	ErrCodeConflictScheduleState ErrorCode = "conflict_schedule_state"

	// Remote backend (502)
	// remote_unavailable is the ONLY retryable class in the taxonomy.
	ErrCodeRemoteUnavailable ErrorCode = "remote_unavailable"
	ErrCodeRemoteRejected    ErrorCode = "remote_rejected"
	ErrCodeRemoteAuth        ErrorCode = "remote_auth_failed"

	// Pipeline item outcomes surfaced as errors.
	ErrCodePipelineSkipped      ErrorCode = "pipeline_skipped"
	ErrCodePipelineNotPatchable ErrorCode = "pipeline_not_patchable"
	ErrCodePipelineApplyFailed  ErrorCode = "pipeline_apply_failed"
	ErrCodePipelineItemTimeout  ErrorCode = "pipeline_item_timeout"

	// Batch-level faults.
	ErrCodeBatchEnumerationFailed ErrorCode = "batch_enumeration_failed"

	// Internal (500)
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "remote_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "pipeline_"), strings.HasPrefix(s, "batch_"):
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// Retryable reports whether callers may retry the failing call.
// remote_unavailable is the only retryable class; every other code is
// terminal for the current attempt.
func (c ErrorCode) Retryable() bool {
	return c == ErrCodeRemoteUnavailable
}

// AppError is the standard application error type used throughout the engine.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
