// internal/common/errors/handler.go
package errors

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorHandler writes standardized error responses and logs them.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// errorResponse is the JSON body written for failed requests.
type errorResponse struct {
	Error struct {
		Code      ErrorCode `json:"code"`
		Message   string    `json:"message"`
		Details   string    `json:"details,omitempty"`
		Retryable bool      `json:"retryable"`
	} `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteHTTPError normalizes err to a StandardError, maps it to an HTTP
// status, logs it, and writes the JSON error body.
func (h *ErrorHandler) WriteHTTPError(w http.ResponseWriter, requestID string, err error) {
	stdErr := h.normalizeError(err)
	status := HTTPStatus(stdErr.Code)

	h.logger.Error("Request failed", map[string]interface{}{
		"requestId": requestID,
		"errorCode": string(stdErr.Code),
		"message":   stdErr.Message,
		"details":   stdErr.Details,
		"retryable": stdErr.Retryable,
		"status":    status,
	})

	var body errorResponse
	body.Error.Code = stdErr.Code
	body.Error.Message = stdErr.Message
	body.Error.Details = stdErr.Details
	body.Error.Retryable = stdErr.Retryable
	body.RequestID = requestID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// normalizeError ensures we always have a StandardError.
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
