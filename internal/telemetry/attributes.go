// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the videoinsights application.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Video attributes
	VideoIDKey       = "video.id"
	VideoFilenameKey = "video.filename"
	VideoDurationKey = "video.duration_seconds"

	// Tool dispatch attributes
	ToolNameKey        = "tool.name"
	ToolCacheHitKey    = "tool.cache_hit"
	ToolBreakerOpenKey = "tool.breaker_open"

	// Processing stage attributes
	StageNameKey    = "stage.name"
	StagePercentKey = "stage.percent"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// VideoAttributes creates video-identity span attributes. filename and
// durationSeconds are omitted when zero-valued, since not every span
// touching a video has both on hand.
func VideoAttributes(videoID, filename string, durationSeconds float64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if videoID != "" {
		attrs = append(attrs, attribute.String(VideoIDKey, videoID))
	}
	if filename != "" {
		attrs = append(attrs, attribute.String(VideoFilenameKey, filename))
	}
	if durationSeconds != 0 {
		attrs = append(attrs, attribute.Float64(VideoDurationKey, durationSeconds))
	}
	return attrs
}

// ToolAttributes creates tool-dispatch span attributes: which tool ran,
// whether the cache served it, and whether its circuit breaker was open.
func ToolAttributes(toolName string, cacheHit, breakerOpen bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ToolNameKey, toolName),
		attribute.Bool(ToolCacheHitKey, cacheHit),
		attribute.Bool(ToolBreakerOpenKey, breakerOpen),
	}
}

// StageAttributes creates progressive-processor stage span attributes.
func StageAttributes(stage string, percent int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StageNameKey, stage),
		attribute.Int(StagePercentKey, percent),
	}
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
