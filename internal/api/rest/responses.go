package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainerrors "github.com/compilo/compilo-backend/internal/domain/errors"
)

// ResponseEnvelope wraps all API responses
type ResponseEnvelope struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Meta    ResponseMeta   `json:"meta"`
}

// ResponseMeta contains response metadata
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse provides detailed error information
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Fields  map[string][]string    `json:"fields,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	envelope := ResponseEnvelope{
		Success: status < 400,
		Data:    data,
		Meta: ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// writeError maps a domain error onto the HTTP surface. Unknown errors come
// out as opaque 500s; their detail stays in the logs.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *domainerrors.AppError
	if !errors.As(err, &appErr) {
		slog.ErrorContext(r.Context(), "unclassified error", "error", err)
		writeErrorCode(w, r, http.StatusInternalServerError,
			"INTERNAL_ERROR", "An internal error occurred")
		return
	}

	if appErr.Type == domainerrors.ErrorTypeInternal {
		slog.ErrorContext(r.Context(), "internal error",
			"code", appErr.Code, "error", appErr.Error())
	}

	envelope := ResponseEnvelope{
		Success: false,
		Error: &ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		},
		Meta: ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	json.NewEncoder(w).Encode(envelope)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	envelope := ResponseEnvelope{
		Success: false,
		Error:   &ErrorResponse{Code: code, Message: message},
		Meta: ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope)
}

// writeValidationFailure renders field-level validation errors as a 422 so
// clients can distinguish malformed requests (400) from requests that are
// well-formed but break a hierarchy rule.
func writeValidationFailure(w http.ResponseWriter, r *http.Request, fields map[string][]string) {
	envelope := ResponseEnvelope{
		Success: false,
		Error: &ErrorResponse{
			Code:    "VALIDATION_FAILED",
			Message: "the request violates one or more hierarchy rules",
			Fields:  fields,
		},
		Meta: ResponseMeta{
			RequestID: RequestIDFromContext(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	json.NewEncoder(w).Encode(envelope)
}
