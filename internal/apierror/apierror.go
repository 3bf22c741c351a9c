// Package apierror provides the JSON error body used by the stub backend.
// Codes are stable so scripts can match on them.
package apierror

import (
	"encoding/json"
	"net/http"
)

// ErrorCode is a machine-readable error classification string.
type ErrorCode string

const (
	AuthMissingToken   ErrorCode = "AUTH_MISSING_TOKEN"
	AuthInvalidToken   ErrorCode = "AUTH_INVALID_TOKEN"
	AuthInvalidSubject ErrorCode = "AUTH_INVALID_SUBJECT"
	BadRequest         ErrorCode = "BAD_REQUEST"
	NotFound           ErrorCode = "NOT_FOUND"
	MethodNotAllowed   ErrorCode = "METHOD_NOT_ALLOWED"
	InternalError      ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the error body.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON error response. The request ID is taken from the
// X-Request-ID header when r is non-nil.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, code ErrorCode, message string) {
	requestID := ""
	if r != nil {
		requestID = r.Header.Get("X-Request-ID")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{ //nolint:errcheck
		Error:     http.StatusText(status),
		ErrorCode: string(code),
		Message:   message,
		RequestID: requestID,
	})
}
