// SPDX-License-Identifier: MIT

// Package validate provides pure validation functions for analysis-result
// payloads: per-kind schema/range checks, batch ordering, and (when a
// store handle is supplied) referential existence of the owning video.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Error represents a single validation failure.
type Error struct {
	Field   string // field name (or path) that failed
	Value   any    // the invalid value, for diagnostics
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// Validator accumulates validation errors across a batch.
type Validator struct {
	errors []Error
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a validation failure.
func (v *Validator) AddError(field, message string, value any) {
	v.errors = append(v.errors, Error{Field: field, Value: value, Message: message})
}

// IsValid reports whether no errors have been accumulated.
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns the accumulated errors.
func (v *Validator) Errors() []Error {
	return v.errors
}

// Err converts accumulated errors into a single error value, or nil.
func (v *Validator) Err() error {
	if len(v.errors) == 0 {
		return nil
	}
	cp := make([]Error, len(v.errors))
	copy(cp, v.errors)
	return ValidationError{errors: cp}
}

// ValidationError bundles multiple Errors into one error value.
type ValidationError struct {
	errors []Error
}

// Errors returns the individual failures making up this error.
func (e ValidationError) Errors() []Error {
	return e.errors
}

func (e ValidationError) Error() string {
	if len(e.errors) == 0 {
		return ""
	}
	if len(e.errors) == 1 {
		return e.errors[0].Error()
	}
	msgs := make([]string, len(e.errors))
	for i, err := range e.errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Payload is a decoded analysis-result record: the caller has already
// unmarshalled the wire JSON into this generic shape.
type Payload = map[string]any

func requireNumber(p Payload, field string) (float64, bool) {
	v, ok := p[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func requireString(p Payload, field string) (string, bool) {
	v, ok := p[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// ValidateFrame checks a frame payload: required timestamp, frame_number
// (>= 0); optional image_path, image_base64, width, height.
func ValidateFrame(p Payload) (ok bool, reason string) {
	ts, present := requireNumber(p, "timestamp")
	if !present {
		return false, "timestamp is required and must be numeric"
	}
	if ts < 0 {
		return false, "timestamp must be >= 0"
	}
	fn, present := requireNumber(p, "frame_number")
	if !present {
		return false, "frame_number is required and must be numeric"
	}
	if fn < 0 {
		return false, "frame_number must be >= 0"
	}
	return jsonSerializable(p)
}

// ValidateCaption checks a caption payload: required frame_timestamp,
// non-empty text after trim; optional confidence in [0,1], model_version.
func ValidateCaption(p Payload) (ok bool, reason string) {
	if _, present := requireNumber(p, "frame_timestamp"); !present {
		return false, "frame_timestamp is required and must be numeric"
	}
	text, present := requireString(p, "text")
	if !present || strings.TrimSpace(text) == "" {
		return false, "text is required and must be non-empty"
	}
	if conf, present := requireNumber(p, "confidence"); present {
		if conf < 0 || conf > 1 {
			return false, "confidence must be within [0,1]"
		}
	}
	return jsonSerializable(p)
}

// ValidateTranscript checks a transcript payload: required start, end
// with end > start, non-empty text; optional confidence, language.
func ValidateTranscript(p Payload) (ok bool, reason string) {
	start, present := requireNumber(p, "start")
	if !present {
		return false, "start is required and must be numeric"
	}
	end, present := requireNumber(p, "end")
	if !present {
		return false, "end is required and must be numeric"
	}
	if end <= start {
		return false, "end must be greater than start"
	}
	text, present := requireString(p, "text")
	if !present || strings.TrimSpace(text) == "" {
		return false, "text is required and must be non-empty"
	}
	if conf, present := requireNumber(p, "confidence"); present {
		if conf < 0 || conf > 1 {
			return false, "confidence must be within [0,1]"
		}
	}
	return jsonSerializable(p)
}

// ValidateObjectDetection checks an object-detection payload: required
// frame_timestamp, a non-empty objects list, each with class_name and
// confidence in [0,1]; optional bbox as a 4-tuple of non-negative
// numbers, track_id.
func ValidateObjectDetection(p Payload) (ok bool, reason string) {
	if _, present := requireNumber(p, "frame_timestamp"); !present {
		return false, "frame_timestamp is required and must be numeric"
	}

	rawObjects, present := p["objects"]
	if !present {
		return false, "objects is required"
	}
	objects, ok := rawObjects.([]any)
	if !ok || len(objects) == 0 {
		return false, "objects must be a non-empty list"
	}

	for i, rawObj := range objects {
		obj, ok := rawObj.(Payload)
		if !ok {
			return false, fmt.Sprintf("objects[%d] must be an object", i)
		}
		if _, present := requireString(obj, "class_name"); !present {
			return false, fmt.Sprintf("objects[%d].class_name is required", i)
		}
		conf, present := requireNumber(obj, "confidence")
		if !present || conf < 0 || conf > 1 {
			return false, fmt.Sprintf("objects[%d].confidence must be within [0,1]", i)
		}
		if rawBbox, present := obj["bbox"]; present {
			bbox, ok := rawBbox.([]any)
			if !ok || len(bbox) != 4 {
				return false, fmt.Sprintf("objects[%d].bbox must have exactly 4 numeric elements", i)
			}
			for _, elem := range bbox {
				n, ok := elem.(float64)
				if !ok || n < 0 {
					return false, fmt.Sprintf("objects[%d].bbox elements must be numeric and >= 0", i)
				}
			}
		}
	}
	return jsonSerializable(p)
}

// jsonSerializable re-marshals p to enforce the spec's requirement that
// payload JSON-serializability is itself a validation rule.
func jsonSerializable(p Payload) (bool, string) {
	if _, err := json.Marshal(p); err != nil {
		return false, fmt.Sprintf("payload is not JSON-serializable: %v", err)
	}
	return true, ""
}

// ContextKind identifies which per-record validator a batch should use.
type ContextKind string

const (
	KindFrame      ContextKind = "frame"
	KindCaption    ContextKind = "caption"
	KindTranscript ContextKind = "transcript"
	KindObject     ContextKind = "object"
)

func validatorFor(kind ContextKind) func(Payload) (bool, string) {
	switch kind {
	case KindFrame:
		return ValidateFrame
	case KindCaption:
		return ValidateCaption
	case KindTranscript:
		return ValidateTranscript
	case KindObject:
		return ValidateObjectDetection
	default:
		return nil
	}
}

// timestampField names the field each kind uses for ordering checks.
func timestampField(kind ContextKind) string {
	switch kind {
	case KindFrame:
		return "timestamp"
	case KindCaption:
		return "frame_timestamp"
	case KindTranscript:
		return "start"
	case KindObject:
		return "frame_timestamp"
	default:
		return ""
	}
}

// VideoExistenceChecker is satisfied by internal/store.Store; kept as an
// interface here so validate never imports store and stays a pure,
// dependency-free package as spec.md §4.2 requires.
type VideoExistenceChecker interface {
	VideoExists(ctx context.Context, videoID string) (bool, error)
}

// ValidateBatch applies the per-record validator for kind to every
// element of records, enforces non-decreasing ordering on the kind's
// primary timestamp field, and — when checker is non-nil — confirms
// videoID references a live video. It returns a single error
// aggregating every failure found.
func ValidateBatch(ctx context.Context, kind ContextKind, records []Payload, videoID string, checker VideoExistenceChecker) error {
	v := New()

	fn := validatorFor(kind)
	if fn == nil {
		v.AddError("context_type", "unknown context_type", kind)
		return v.Err()
	}

	tsField := timestampField(kind)
	var prevTS float64
	havePrev := false

	for i, rec := range records {
		if ok, reason := fn(rec); !ok {
			v.AddError(fmt.Sprintf("records[%d]", i), reason, rec)
			continue
		}
		ts, _ := requireNumber(rec, tsField)
		if havePrev && ts < prevTS {
			v.AddError(fmt.Sprintf("records[%d].%s", i, tsField),
				"timestamp sequence must be non-decreasing within a context_type batch", ts)
		}
		prevTS, havePrev = ts, true
	}

	if checker != nil && videoID != "" {
		exists, err := checker.VideoExists(ctx, videoID)
		if err != nil {
			v.AddError("video_id", fmt.Sprintf("could not verify video existence: %v", err), videoID)
		} else if !exists {
			v.AddError("video_id", "video does not exist or is deleted", videoID)
		}
	}

	return v.Err()
}
