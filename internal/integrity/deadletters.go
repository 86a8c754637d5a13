// SPDX-License-Identifier: MIT

package integrity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/validate"
)

// RetryQueue lists and replays dead letters: persistence writes that
// exhausted StoreToolResults' retry budget (spec.md §4.4 step 7) and
// were appended to the dead_letters table for operator inspection, per
// spec.md §7's "StoreFatal surfaces to operator" rule.
type RetryQueue struct {
	store       *store.Store
	persistence *persistence.Service
}

// NewRetryQueue builds a RetryQueue over st and svc.
func NewRetryQueue(st *store.Store, svc *persistence.Service) *RetryQueue {
	return &RetryQueue{store: st, persistence: svc}
}

// ListDeadLetters returns dead letters for one video, or every
// unresolved dead letter when videoID is empty.
func (q *RetryQueue) ListDeadLetters(ctx context.Context, videoID string) ([]store.DeadLetter, error) {
	return q.store.ListDeadLetters(ctx, videoID)
}

// Requeue re-attempts the persistence write a dead letter recorded,
// using the same payload that failed originally. A successful write
// marks the dead letter resolved; the payload is not re-validated
// against the tool's parameter schema, only against the standard
// per-kind record validator StoreToolResults already applies.
func (q *RetryQueue) Requeue(ctx context.Context, deadLetterID string) (persistence.CountsByKind, error) {
	dl, err := q.store.GetDeadLetter(ctx, deadLetterID)
	if err != nil {
		return nil, err
	}
	if dl.ResolvedAt != nil {
		return nil, apperrors.New(apperrors.ValidationFailure, "dead letter already resolved").WithDetails(map[string]any{"dead_letter_id": deadLetterID})
	}

	var payloads []validate.Payload
	if err := json.Unmarshal(dl.Payload, &payloads); err != nil {
		return nil, apperrors.Wrap(apperrors.ValidationFailure, "decode dead letter payload", err)
	}

	counts, err := q.persistence.StoreToolResults(ctx, dl.VideoID, dl.ToolName, payloads, persistence.Lineage{ToolName: dl.ToolName}, "")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreFatal, "requeue dead letter write failed again", err)
	}

	if err := q.store.ResolveDeadLetter(ctx, deadLetterID, time.Now()); err != nil {
		return nil, err
	}
	return counts, nil
}
