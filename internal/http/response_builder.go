package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budgetly/internal/core"
	"budgetly/internal/log"
	"budgetly/internal/middleware/trace"
)

// errorBody is the envelope of every error response.
type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Kind    core.Kind              `json:"kind"`
	Details map[string]interface{} `json:"details,omitempty"`
}

const (
	codeUnauthenticated = "UNAUTHENTICATED"
	codeRateLimited     = "RATE_LIMITED"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(kind core.Kind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindPolicy:
		return http.StatusForbidden
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// The status is already sent; an encode failure means the client left.
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, p errorPayload) {
	writeJSON(w, status, errorBody{Error: p})
}

// writeError renders err with the status of its kind. Internal failures
// are logged, reported and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status := statusFor(kind)
	ctx := r.Context()
	logger := log.FromContext(ctx)

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed",
			log.NewFields().WithError(err).WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "").ToSlice()...)
		log.ReportError(ctx, err, map[string]string{
			"path":       r.URL.Path,
			"method":     r.Method,
			"request_id": trace.GetRequestID(ctx),
		})
	}

	var e *core.Error
	if !errors.As(err, &e) || kind == core.KindInternal {
		writeErrorBody(w, status, errorPayload{
			Code:    core.CodeInternal,
			Message: "internal error",
			Kind:    core.KindInternal,
		})
		return
	}
	writeErrorBody(w, status, errorPayload{
		Code:    e.Code,
		Message: e.Message,
		Kind:    e.Kind,
		Details: e.Details,
	})
}

func writeUnauthenticated(w http.ResponseWriter, message string) {
	writeErrorBody(w, http.StatusUnauthorized, errorPayload{
		Code:    codeUnauthenticated,
		Message: message,
		Kind:    core.KindValidation,
	})
}

func writeRateLimited(w http.ResponseWriter, _ *http.Request) {
	writeErrorBody(w, http.StatusTooManyRequests, errorPayload{
		Code:    codeRateLimited,
		Message: "rate limit exceeded, try again later",
		Kind:    core.KindPolicy,
	})
}
