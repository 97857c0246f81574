package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SuccessResponse wraps read endpoints' payloads
type SuccessResponse struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON writes data as JSON with the given status; nil data writes only the header
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 with data wrapped in SuccessResponse
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

// WriteNoContent writes a bare 204
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, status int, kind, message, fallback string, details map[string]interface{}) error {
	if message == "" {
		message = fallback
	}
	return WriteJSON(w, status, ErrorResponse{Error: kind, Message: message, Details: details})
}

// WriteBadRequest writes a 400
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return writeError(w, http.StatusBadRequest, "bad_request", message, "Invalid request", details)
}

// WriteUnauthorized writes a 401
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	return writeError(w, http.StatusUnauthorized, "unauthorized", message, "Authentication required", nil)
}

// WriteForbidden writes a 403
func WriteForbidden(w http.ResponseWriter, message string) error {
	return writeError(w, http.StatusForbidden, "forbidden", message, "Access forbidden", nil)
}

// WriteTooManyRequests writes a 429 for admission and budget denials
func WriteTooManyRequests(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return writeError(w, http.StatusTooManyRequests, "rate_limit_exceeded", message, "Rate limit exceeded", details)
}

// WriteBadGateway writes a 502 for upstream provider failures
func WriteBadGateway(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return writeError(w, http.StatusBadGateway, "bad_gateway", message, "Upstream provider failed", details)
}

// WriteServiceUnavailable writes a 503 for unreachable backing services
func WriteServiceUnavailable(w http.ResponseWriter, message string) error {
	return writeError(w, http.StatusServiceUnavailable, "service_unavailable", message, "A backing service is unavailable", nil)
}

// WriteInternalServerError writes a 500 without leaking the cause
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	return writeError(w, http.StatusInternalServerError, "internal_error", message, "Internal server error", nil)
}
