// Package httputil centralizes JSON encoding of responses and domain error
// translation so every handler emits the same envelopes.
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	dErrors "docanchor/pkg/domain-errors"
)

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeTransientExternal: http.StatusBadGateway,
	dErrors.CodePermanentExternal: http.StatusBadGateway,
	dErrors.CodeValidation:        http.StatusUnprocessableEntity,
	dErrors.CodeConsistency:       http.StatusConflict,
	dErrors.CodeAuthorization:     http.StatusForbidden,
	dErrors.CodeDuplicate:         http.StatusConflict,
	dErrors.CodeNotFound:          http.StatusNotFound,
	dErrors.CodeInvalidInput:      http.StatusBadRequest,
	dErrors.CodeBadRequest:        http.StatusBadRequest,
	dErrors.CodeConflict:          http.StatusConflict,
	dErrors.CodeUnauthorized:      http.StatusUnauthorized,
	dErrors.CodeInternal:          http.StatusInternalServerError,
}

// ToHTTPStatus maps a domain error code to its HTTP status.
func ToHTTPStatus(code dErrors.Code) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteError writes the standard error envelope. Internal errors omit the
// description so infrastructure details never leak to callers.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal {
		if msg := dErrors.MessageOf(err); msg != "" {
			body["error_description"] = msg
		}
	}
	WriteJSON(w, ToHTTPStatus(code), body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeAndPrepare decodes the request body into T and writes a bad-request
// envelope on failure, returning ok=false so the handler can bail early.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if logger != nil {
			logger.WarnContext(ctx, "failed to decode request body",
				slog.String("request_id", requestID),
				slog.String("error", err.Error()))
		}
		WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "invalid request body", err))
		var zero T
		return zero, false
	}
	return req, true
}
