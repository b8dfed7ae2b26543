package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"stargazer-gateway/internal/github"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeJSON sends a JSON response consistently across handlers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeUpstreamError maps the error taxonomy onto HTTP statuses. Rate
// limits carry a Retry-After header so clients can honor the pause.
func writeUpstreamError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	kind := errorKind(err)

	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "rate_limited":
		status = http.StatusTooManyRequests
		if hint, ok := github.RetryAfterHint(err); ok && hint > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(hint.Seconds())))
		}
	case "timeout":
		status = http.StatusGatewayTimeout
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// errorKind classifies err for per-item batch reporting and status
// mapping.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, github.ErrNotFound):
		return "not_found"
	case errors.Is(err, github.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		if _, ok := github.RetryAfterHint(err); ok {
			return "rate_limited"
		}
		return "upstream_error"
	}
}
