// Package errors provides standardized error handling for the
// recommendation service.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeClinicianNotFound      ErrorCode = "CLINICIAN_NOT_FOUND"
	ErrCodeClinicianLookupFailed  ErrorCode = "CLINICIAN_LOOKUP_FAILED"
	ErrCodeClinicianLookupTimeout ErrorCode = "CLINICIAN_LOOKUP_TIMEOUT"
	ErrCodeUnsupportedDiscipline  ErrorCode = "UNSUPPORTED_DISCIPLINE"

	ErrCodeCaseLookupFailed ErrorCode = "CASE_LOOKUP_FAILED"
	ErrCodeNoCandidates     ErrorCode = "NO_CANDIDATES"

	ErrCodeScorerUnavailable        ErrorCode = "SCORER_UNAVAILABLE"
	ErrCodeScorerTimeout            ErrorCode = "SCORER_TIMEOUT"
	ErrCodeScorerMalformedResponse  ErrorCode = "SCORER_MALFORMED_RESPONSE"
	ErrCodeScorerIncompleteResponse ErrorCode = "SCORER_INCOMPLETE_RESPONSE"

	ErrCodeInvalidRequest   ErrorCode = "INVALID_REQUEST"
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// AsStandardError unwraps err into a *StandardError when possible.
func AsStandardError(err error) (*StandardError, bool) {
	var se *StandardError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Error Constructors

// NewClinicianNotFoundError creates a non-retryable lookup error.
func NewClinicianNotFoundError(providerID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeClinicianNotFound,
		Message:   "Clinician not found",
		Details:   fmt.Sprintf("providerId: %s", providerID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewClinicianLookupFailedError creates a retryable upstream error.
func NewClinicianLookupFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeClinicianLookupFailed,
		Message:   "Clinician lookup failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewClinicianLookupTimeoutError creates a retryable timeout error.
func NewClinicianLookupTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeClinicianLookupTimeout,
		Message:   "Clinician lookup timed out",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnsupportedDisciplineError creates a non-retryable discipline error.
func NewUnsupportedDisciplineError(discipline string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnsupportedDiscipline,
		Message:   "Clinician discipline is not supported for matching",
		Details:   fmt.Sprintf("discipline: %s", discipline),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCaseLookupFailedError creates a retryable upstream error.
func NewCaseLookupFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCaseLookupFailed,
		Message:   "Open case lookup failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoCandidatesError marks a request that produced no scoreable cases.
func NewNoCandidatesError(discipline string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoCandidates,
		Message:   "No open cases match the clinician discipline",
		Details:   fmt.Sprintf("discipline: %s", discipline),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewScorerUnavailableError creates a retryable scorer transport error.
func NewScorerUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScorerUnavailable,
		Message:   "Scoring backend unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewScorerTimeoutError creates a retryable scorer timeout error.
func NewScorerTimeoutError() *StandardError {
	return &StandardError{
		Code:      ErrCodeScorerTimeout,
		Message:   "Scoring call exceeded its deadline",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewScorerMalformedResponseError creates a retryable parse error.
func NewScorerMalformedResponseError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeScorerMalformedResponse,
		Message:   "Scoring response could not be parsed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewScorerIncompleteResponseError marks a response missing case entries.
func NewScorerIncompleteResponseError(missing int) *StandardError {
	return &StandardError{
		Code:      ErrCodeScorerIncompleteResponse,
		Message:   "Scoring response omitted cases",
		Details:   fmt.Sprintf("missingCases: %d", missing),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidRequestError creates a non-retryable request validation error.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Invalid request parameters",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMethodNotAllowedError rejects a request using the wrong HTTP verb.
func NewMethodNotAllowedError(method string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMethodNotAllowed,
		Message:   "Method not allowed",
		Details:   fmt.Sprintf("method: %s", method),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Internal error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// HTTPStatus maps internal error codes to HTTP response codes.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeClinicianNotFound, ErrCodeNoCandidates:
		return http.StatusNotFound
	case ErrCodeUnsupportedDiscipline:
		return http.StatusUnprocessableEntity
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeClinicianLookupFailed,
		ErrCodeClinicianLookupTimeout,
		ErrCodeCaseLookupFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeClinicianLookupFailed,
		ErrCodeCaseLookupFailed,
		ErrCodeScorerUnavailable,
		ErrCodeScorerMalformedResponse,
		ErrCodeScorerIncompleteResponse:
		return 3

	case ErrCodeClinicianLookupTimeout,
		ErrCodeScorerTimeout:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}
