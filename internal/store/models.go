// SPDX-License-Identifier: MIT

package store

import "time"

// ProcessingStatus is the lifecycle state of a Video, owned exclusively
// by the progressive processor.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "pending"
	StatusExtracting ProcessingStatus = "extracting"
	StatusCaptioning ProcessingStatus = "captioning"
	StatusAnalyzing  ProcessingStatus = "analyzing"
	StatusComplete   ProcessingStatus = "complete"
	StatusError      ProcessingStatus = "error"
)

// ContextType identifies the kind of analysis payload a ContextRecord
// carries.
type ContextType string

const (
	ContextFrame       ContextType = "frame"
	ContextCaption     ContextType = "caption"
	ContextTranscript  ContextType = "transcript"
	ContextObject      ContextType = "object"
	ContextIdempotency ContextType = "idempotency"
)

// LineageOperation classifies a LineageRecord entry.
type LineageOperation string

const (
	OperationCreate    LineageOperation = "create"
	OperationReprocess LineageOperation = "reprocess"
)

// Video is the unit of ingestion.
type Video struct {
	VideoID          string
	Filename         string
	FilePath         string
	DurationSeconds  float64
	UploadTime       time.Time
	ProcessingStatus ProcessingStatus
	ThumbnailPath    *string
	DeletedAt        *time.Time
}

// ContextRecord is one piece of analysis output about one video at one
// time offset, carrying lineage metadata inline.
type ContextRecord struct {
	ContextID        string
	VideoID          string
	ContextType      ContextType
	TimestampSeconds float64
	Payload          []byte // canonical JSON
	ToolName         string
	ToolVersion      string
	ModelVersion     string
	ProcessingParams []byte // canonical JSON
	IdempotencyKey   *string
	CreatedAt        time.Time
}

// LineageRecord is an append-only audit row describing who/what produced
// or reprocessed a ContextRecord.
type LineageRecord struct {
	LineageID    string
	VideoID      string
	ContextID    *string
	Operation    LineageOperation
	ToolName     string
	ToolVersion  string
	ModelVersion string
	Parameters   []byte // canonical JSON
	UserID       string
	Timestamp    time.Time
}

// DeadLetter records a persistence write that exhausted its retry budget,
// for later operator inspection or reconciliation replay.
type DeadLetter struct {
	DeadLetterID  string
	VideoID       string
	ToolName      string
	Payload       []byte
	FailureReason string
	Attempts      int
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}
