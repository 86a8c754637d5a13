// SPDX-License-Identifier: MIT

// Package httpapi implements the HTTP surface of the orchestrator:
// tool listing and execution, per-video processing and progress
// endpoints, queue introspection, and cache management — every
// response wrapped in the standard envelope.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/videoforge/insights/internal/api"
	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/log"
)

// Version is populated at build time via -ldflags, matching the
// teacher's version/commit/buildDate pattern.
var Version = "dev"

// Envelope is the standard response shape for every endpoint.
type Envelope struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *EnvelopeError `json:"error,omitempty"`
	Metadata Metadata       `json:"metadata"`
}

// EnvelopeError carries a machine-readable code alongside the message.
type EnvelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Metadata rides along with every response, success or failure.
type Metadata struct {
	RequestID     string  `json:"request_id"`
	Timestamp     string  `json:"timestamp"`
	Version       string  `json:"version"`
	ExecutionTime float64 `json:"execution_time"`
}

func newMetadata(r *http.Request, start time.Time) Metadata {
	return Metadata{
		RequestID:     log.RequestIDFromContext(r.Context()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Version:       Version,
		ExecutionTime: time.Since(start).Seconds(),
	}
}

// respondOK writes a success envelope with status 200.
func respondOK(w http.ResponseWriter, r *http.Request, start time.Time, data any) {
	respondStatus(w, r, start, http.StatusOK, data)
}

// respondStatus writes a success envelope with an explicit status code.
func respondStatus(w http.ResponseWriter, r *http.Request, start time.Time, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success:  true,
		Data:     data,
		Metadata: newMetadata(r, start),
	})
}

// respondErr writes a failure envelope for err, mapping its apperrors.Kind
// to an HTTP status and a stable error code.
func respondErr(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	status, code := statusAndCodeFor(err)
	details := detailsOf(err)
	w.Header().Set("Content-Type", "application/json")
	if retryAfter, ok := retryAfterSeconds(details); ok {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: false,
		Error: &EnvelopeError{
			Code:    code,
			Message: err.Error(),
			Details: details,
		},
		Metadata: newMetadata(r, start),
	})
}

// retryAfterSeconds extracts a "retry_after" integer from an error's
// details map (set by a BreakerOpen apperrors.Error), for the
// Retry-After response header.
func retryAfterSeconds(details any) (int, bool) {
	m, ok := details.(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := m["retry_after"].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func detailsOf(err error) any {
	var appErr *apperrors.Error
	if ok := asAppError(err, &appErr); ok && appErr.Details != nil {
		return appErr.Details
	}
	return nil
}

// notFoundCode distinguishes which resource was missing so the envelope
// carries a specific code rather than a blanket NOT_FOUND.
func notFoundCode(err error) string {
	var appErr *apperrors.Error
	if asAppError(err, &appErr) {
		if _, ok := appErr.Details["tool_name"]; ok {
			return api.ErrToolNotFound.Code
		}
		if _, ok := appErr.Details["job_id"]; ok {
			return api.ErrJobNotFound.Code
		}
	}
	return api.ErrVideoNotFound.Code
}

func asAppError(err error, target **apperrors.Error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ae, ok := err.(*apperrors.Error); ok {
			*target = ae
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func statusAndCodeFor(err error) (int, string) {
	switch apperrors.KindOf(err) {
	case apperrors.ValidationFailure:
		return http.StatusBadRequest, api.ErrInvalidInput.Code
	case apperrors.NotFound:
		return http.StatusNotFound, notFoundCode(err)
	case apperrors.ToolTimeout:
		return http.StatusGatewayTimeout, "TOOL_TIMEOUT"
	case apperrors.ToolFailure:
		return http.StatusBadGateway, "TOOL_FAILURE"
	case apperrors.BreakerOpen:
		return http.StatusServiceUnavailable, api.ErrBreakerOpen.Code
	case apperrors.RateLimited:
		return http.StatusTooManyRequests, api.ErrRateLimitExceeded.Code
	case apperrors.StoreTransient, apperrors.StoreFatal:
		return http.StatusInternalServerError, api.ErrInternalServer.Code
	default:
		return http.StatusInternalServerError, api.ErrInternalServer.Code
	}
}
