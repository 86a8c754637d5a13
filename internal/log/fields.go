// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging, kept in one
// place so call sites agree on spelling.
const (
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldJobID         = "job_id"
	FieldVideoID       = "video_id"
	FieldContextID     = "context_id"
	FieldToolName      = "tool_name"
	FieldStage         = "stage"
	FieldEvent         = "event"
	FieldComponent     = "component"

	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
