package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"
)

const internalMessage = "Something went wrong, please try again later"

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

// StatusFor maps an error kind to the HTTP status the client sees
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvariantViolation):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrAvailabilityConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentProvider):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrPaymentPending):
		return http.StatusAccepted
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func kindOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvariantViolation):
		return ""
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrAvailabilityConflict):
		return "availability_conflict"
	case errors.Is(err, domain.ErrPaymentProvider):
		return "payment_provider"
	case errors.Is(err, domain.ErrPaymentPending):
		return "payment_pending"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

// writeError answers with the user-facing reason. Internal error text never leaves the process.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	resp := ErrorResponse{Error: domain.UserMessage(err), Kind: kindOf(err)}
	var ue *domain.UserError
	if status == http.StatusInternalServerError {
		resp = ErrorResponse{Error: internalMessage}
	} else if errors.As(err, &ue) {
		resp.Field = ue.Field
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message})
}
