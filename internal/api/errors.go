package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"catalog-lineage/internal/domain"
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeNotFound         = "NOT_FOUND"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeConflict         = "CONFLICT"
	CodeUnavailable      = "UNAVAILABLE"
	CodeDeadlineExceeded = "DEADLINE_EXCEEDED"
	CodeInternal         = "INTERNAL"
)

// httpStatusFromDomainError maps domain errors to an HTTP status and code.
func httpStatusFromDomainError(err error) (int, string) {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var transient *domain.TransientError
	var cancelled *domain.CancelledError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, CodeNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest, CodeInvalidArgument
	case errors.As(err, &conflict):
		return http.StatusConflict, CodeConflict
	case errors.As(err, &cancelled):
		return http.StatusGatewayTimeout, CodeDeadlineExceeded
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable, CodeUnavailable
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as an ErrorResponse. Internal errors are logged
// and their message is not exposed.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := httpStatusFromDomainError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}
