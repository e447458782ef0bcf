package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error             string `json:"error"`   // Machine-readable error code
	Message           string `json:"message"` // Human-readable message
	RemainingAttempts *int   `json:"remaining_attempts,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSONError(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

func writeJSONError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

// WriteAuthFailed reports a rejected credential or code submission, with the
// remaining-attempts count when it is below max and above zero.
func WriteAuthFailed(w http.ResponseWriter, message string, remainingAttempts *int) {
	writeJSONError(w, http.StatusUnauthorized, ErrorResponse{
		Error:             "unauthorized",
		Message:           message,
		RemainingAttempts: remainingAttempts,
	})
}

// WriteLocked reports a lockout gate rejection with a retry hint.
func WriteLocked(w http.ResponseWriter, remainingSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(remainingSeconds))
	writeJSONError(w, http.StatusTooManyRequests, ErrorResponse{
		Error:             "locked",
		Message:           "Too many failed login attempts. Please try again later.",
		RetryAfterSeconds: remainingSeconds,
	})
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, "delivery_failed", message)
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
