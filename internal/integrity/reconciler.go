// SPDX-License-Identifier: MIT

package integrity

import (
	"context"
	"time"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/log"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/store"
)

// ReconcileResult reports what Reconcile found and, if anything, changed.
type ReconcileResult struct {
	VideoID      string                   `json:"video_id"`
	PriorStatus  store.ProcessingStatus   `json:"prior_status"`
	NewStatus    store.ProcessingStatus   `json:"new_status"`
	Counts       persistence.CountsByKind `json:"counts"`
	Changed      bool                     `json:"changed"`
	ReconciledAt time.Time                `json:"reconciled_at"`
}

// Reconciler re-derives a video's processing_status from its actual
// context_records row counts, for the case where a processor crashed
// mid-stage and left processing_status behind what was actually
// persisted.
type Reconciler struct {
	store       *store.Store
	persistence *persistence.Service
}

// NewReconciler builds a Reconciler over st and svc.
func NewReconciler(st *store.Store, svc *persistence.Service) *Reconciler {
	return &Reconciler{store: st, persistence: svc}
}

// Reconcile inspects videoID's stored counts and advances
// processing_status to match, never regressing a status that is already
// ahead of what the counts imply (a video legitimately reaches
// `complete` before every kind is populated, since transcribe_audio and
// detect_objects are non-mandatory per spec.md §4.6).
func (r *Reconciler) Reconcile(ctx context.Context, videoID string) (*ReconcileResult, error) {
	v, err := r.store.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	report, err := r.persistence.VerifyVideoDataCompleteness(ctx, videoID)
	if err != nil {
		return nil, err
	}

	derived := deriveStatus(v.ProcessingStatus, report.Counts)
	result := &ReconcileResult{
		VideoID:      videoID,
		PriorStatus:  v.ProcessingStatus,
		NewStatus:    derived,
		Counts:       report.Counts,
		ReconciledAt: time.Now().UTC(),
	}

	if derived == v.ProcessingStatus {
		return result, nil
	}

	if err := r.store.UpdateProcessingStatus(ctx, videoID, derived); err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "apply reconciled status", err)
	}
	log.WithComponent("integrity").Warn().
		Str("video_id", videoID).
		Str("prior_status", string(v.ProcessingStatus)).
		Str("new_status", string(derived)).
		Msg("reconciled processing_status from actual row counts")

	result.Changed = true
	return result, nil
}

// deriveStatus computes the status that the row counts alone justify,
// never regressing below the current status: a crash leaves
// processing_status stale behind reality, it never runs it ahead.
func deriveStatus(current store.ProcessingStatus, counts persistence.CountsByKind) store.ProcessingStatus {
	if current == store.StatusComplete || current == store.StatusError {
		return current
	}

	derived := store.StatusPending
	if counts[store.ContextFrame] > 0 {
		derived = store.StatusCaptioning
	}
	if counts[store.ContextCaption] > 0 {
		derived = store.StatusAnalyzing
	}
	if counts[store.ContextTranscript] > 0 || counts[store.ContextObject] > 0 {
		derived = store.StatusComplete
	}

	if statusRank(derived) < statusRank(current) {
		return current
	}
	return derived
}

var statusOrder = []store.ProcessingStatus{
	store.StatusPending, store.StatusExtracting, store.StatusCaptioning, store.StatusAnalyzing, store.StatusComplete,
}

func statusRank(s store.ProcessingStatus) int {
	for i, st := range statusOrder {
		if st == s {
			return i
		}
	}
	return -1
}
