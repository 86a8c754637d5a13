// SPDX-License-Identifier: MIT

// Package integrity implements the consistency-check, reconciliation,
// and dead-letter tooling an operator uses to audit and repair a
// video's stored analysis data: invariant checks over the testable
// properties of spec.md §8, status reconciliation against actual row
// counts, and lineage lookups for provenance queries.
package integrity

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/store"
)

// Violation describes one invariant breach found for a video.
type Violation struct {
	Rule    string `json:"rule"`
	Detail  string `json:"detail"`
	Subject string `json:"subject,omitempty"` // context_id or context_type, depending on Rule
}

// Report is the outcome of a consistency Check.
type Report struct {
	VideoID    string      `json:"video_id"`
	CheckedAt  time.Time   `json:"checked_at"`
	Violations []Violation `json:"violations,omitempty"`
}

// Clean reports whether the check found no violations.
func (r *Report) Clean() bool { return len(r.Violations) == 0 }

// ConsistencyChecker audits one video's context_records against the
// invariants in spec.md §8: no orphan contexts, non-decreasing
// timestamps within a context_type, and a sane stage progression.
// Concurrent identical requests collapse onto one underlying check via
// singleflight, the same pattern teacher's health.Manager uses to
// protect readiness probes from a thundering herd.
type ConsistencyChecker struct {
	store *store.Store
	sfg   singleflight.Group
}

// NewConsistencyChecker builds a checker over st.
func NewConsistencyChecker(st *store.Store) *ConsistencyChecker {
	return &ConsistencyChecker{store: st}
}

// Check runs every invariant query for videoID and returns a combined
// Report.
func (c *ConsistencyChecker) Check(ctx context.Context, videoID string) (*Report, error) {
	v, err, _ := c.sfg.Do(videoID, func() (interface{}, error) {
		return c.check(ctx, videoID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Report), nil
}

func (c *ConsistencyChecker) check(ctx context.Context, videoID string) (*Report, error) {
	report := &Report{VideoID: videoID, CheckedAt: time.Now().UTC()}

	exists, err := c.store.VideoExists(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.New(apperrors.NotFound, "video not found").WithDetails(map[string]any{"video_id": videoID})
	}

	orphans, err := c.orphanContexts(ctx, videoID)
	if err != nil {
		return nil, err
	}
	report.Violations = append(report.Violations, orphans...)

	nonMonotonic, err := c.nonMonotonicTimestamps(ctx, videoID)
	if err != nil {
		return nil, err
	}
	report.Violations = append(report.Violations, nonMonotonic...)

	stageViolations, err := c.stageProgression(ctx, videoID)
	if err != nil {
		return nil, err
	}
	report.Violations = append(report.Violations, stageViolations...)

	return report, nil
}

// orphanContexts implements invariant 1: every context_records row must
// reference a video that exists. Foreign-key enforcement (PRAGMA
// foreign_keys=ON) makes this unreachable through this process, but a
// database opened elsewhere with the pragma off would not be caught by
// that alone.
func (c *ConsistencyChecker) orphanContexts(ctx context.Context, videoID string) ([]Violation, error) {
	rows, err := c.store.ExecuteQuery(ctx,
		`SELECT cr.context_id FROM context_records cr
		 LEFT JOIN videos v ON v.video_id = cr.video_id
		 WHERE cr.video_id = ? AND v.video_id IS NULL`, videoID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "query orphan contexts", err)
	}
	defer rows.Close()

	var violations []Violation
	for rows.Next() {
		var contextID string
		if err := rows.Scan(&contextID); err != nil {
			return nil, apperrors.Wrap(apperrors.StoreTransient, "scan orphan context", err)
		}
		violations = append(violations, Violation{Rule: "no_orphan_contexts", Detail: "context record references a nonexistent video", Subject: contextID})
	}
	return violations, rows.Err()
}

// nonMonotonicTimestamps implements invariant 2: within a (video_id,
// context_type), rows ordered by insertion (created_at, rowid) must
// have non-decreasing timestamp_seconds. A violation here most often
// means a reprocessing run restarted the clock; it is reported, not
// rejected, per spec.md §8's "bounded window" language.
func (c *ConsistencyChecker) nonMonotonicTimestamps(ctx context.Context, videoID string) ([]Violation, error) {
	rows, err := c.store.ExecuteQuery(ctx,
		`SELECT context_id, context_type, timestamp_seconds FROM context_records
		 WHERE video_id = ? AND context_type != 'idempotency'
		 ORDER BY context_type, created_at ASC, rowid ASC`, videoID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "query timestamps", err)
	}
	defer rows.Close()

	var violations []Violation
	lastByType := map[string]float64{}
	seenByType := map[string]bool{}
	for rows.Next() {
		var (
			contextID, contextType string
			ts                     float64
		)
		if err := rows.Scan(&contextID, &contextType, &ts); err != nil {
			return nil, apperrors.Wrap(apperrors.StoreTransient, "scan timestamp row", err)
		}
		if seenByType[contextType] && ts < lastByType[contextType] {
			violations = append(violations, Violation{
				Rule:    "monotonic_timestamps",
				Detail:  "timestamp decreased relative to the prior insert for this context_type",
				Subject: contextID,
			})
		}
		lastByType[contextType] = ts
		seenByType[contextType] = true
	}
	return violations, rows.Err()
}

// stageProgression implements invariant 7: no video reaches CAPTIONING
// without at least one frame, and none reaches complete without
// extraction having succeeded.
func (c *ConsistencyChecker) stageProgression(ctx context.Context, videoID string) ([]Violation, error) {
	v, err := c.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	frameCount, err := c.countContexts(ctx, videoID, store.ContextFrame)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	switch v.ProcessingStatus {
	case store.StatusCaptioning, store.StatusAnalyzing, store.StatusComplete:
		if frameCount == 0 {
			violations = append(violations, Violation{
				Rule:   "stage_progression",
				Detail: "video advanced past EXTRACTING with zero frame records",
			})
		}
	}
	return violations, nil
}

func (c *ConsistencyChecker) countContexts(ctx context.Context, videoID string, contextType store.ContextType) (int, error) {
	row := c.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM context_records WHERE video_id = ? AND context_type = ?`, videoID, contextType)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.StoreTransient, "count context records", err)
	}
	return n, nil
}
