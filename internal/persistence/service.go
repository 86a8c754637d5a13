// SPDX-License-Identifier: MIT

// Package persistence implements the single writer path for
// ContextRecords: idempotent, validated, transactional batch writes with
// lineage metadata, plus completeness auditing and deletion.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/cache"
	"github.com/videoforge/insights/internal/log"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/validate"
)

// toolKindRoute maps a tool name to the ContextType its results fall
// under, per spec.md §4.4 step 2.
var toolKindRoute = map[string]store.ContextType{
	"extract_frames":   store.ContextFrame,
	"caption_frames":   store.ContextCaption,
	"transcribe_audio": store.ContextTranscript,
	"detect_objects":   store.ContextObject,
}

func validateKindFor(ct store.ContextType) validate.ContextKind {
	switch ct {
	case store.ContextFrame:
		return validate.KindFrame
	case store.ContextCaption:
		return validate.KindCaption
	case store.ContextTranscript:
		return validate.KindTranscript
	case store.ContextObject:
		return validate.KindObject
	default:
		return ""
	}
}

// retryDelays implements the exponential backoff schedule from spec.md
// §4.4 step 7: up to 3 retries after the first attempt, waiting 0.5s,
// 1s and 2s before them.
var retryDelays = []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}

// Lineage describes the provenance of a batch of results, carried
// verbatim onto every ContextRecord and into the best-effort lineage
// trail.
type Lineage struct {
	ToolName     string
	ToolVersion  string
	ModelVersion string
	Parameters   map[string]any
	UserID       string
}

// CountsByKind reports how many ContextRecords of each kind a write or
// completeness check touched.
type CountsByKind map[store.ContextType]int

// Service is the sole writer of ContextRecords.
type Service struct {
	store *store.Store
	cache *cache.Tiered // may be nil; invalidated on every write
}

// NewService builds a persistence Service over store s, optionally
// invalidating tc on writes when tc is non-nil.
func NewService(s *store.Store, tc *cache.Tiered) *Service {
	return &Service{store: s, cache: tc}
}

// StoreToolResults performs the full contract of spec.md §4.4: optional
// idempotency short-circuit, routing, batch validation, a transactional
// write with a savepoint and row-count verification, a best-effort
// lineage write, sentinel recording, and retry with backoff on transient
// store errors.
func (svc *Service) StoreToolResults(ctx context.Context, videoID, toolName string, results []validate.Payload, lineage Lineage, idempotencyKey string) (CountsByKind, error) {
	contextType, ok := toolKindRoute[toolName]
	if !ok {
		return nil, apperrors.Validation("tool_name", fmt.Sprintf("unknown tool %q", toolName))
	}

	if idempotencyKey != "" {
		if counts, found, err := svc.lookupIdempotencySentinel(ctx, videoID, toolName, idempotencyKey); err != nil {
			return nil, err
		} else if found {
			return counts, nil
		}
	}

	kind := validateKindFor(contextType)
	if err := validate.ValidateBatch(ctx, kind, results, videoID, svc.store); err != nil {
		return nil, apperrors.Wrap(apperrors.ValidationFailure, "batch validation failed", err)
	}

	var counts CountsByKind
	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		counts, lastErr = svc.writeOnce(ctx, videoID, toolName, contextType, results, lineage, idempotencyKey)
		if lastErr == nil {
			return counts, nil
		}
		if !apperrors.Retryable(lastErr) || attempt == len(retryDelays) {
			break
		}
		log.WithComponent("persistence").Warn().
			Err(lastErr).Str("video_id", videoID).Str("tool_name", toolName).
			Int("attempt", attempt+1).Msg("transient store error, retrying")
		select {
		case <-time.After(retryDelays[attempt]):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	svc.deadLetterBestEffort(ctx, videoID, toolName, results, lastErr, len(retryDelays)+1)
	return nil, apperrors.Wrap(apperrors.StoreFatal, "exhausted retries writing tool results", lastErr)
}

// deadLetterBestEffort records a write that exhausted its retry budget so
// an operator (or the integrity Reconciler) can inspect and requeue it.
// Per spec.md §7, StoreFatal surfaces to the operator; failure to record
// the dead letter itself is logged, not escalated further.
func (svc *Service) deadLetterBestEffort(ctx context.Context, videoID, toolName string, results []validate.Payload, cause error, attempts int) {
	payload, err := json.Marshal(results)
	if err != nil {
		log.WithComponent("persistence").Error().Err(err).Msg("marshal payload for dead letter")
		return
	}
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	if _, err := svc.store.InsertDeadLetter(ctx, videoID, toolName, payload, reason, attempts); err != nil {
		log.WithComponent("persistence").Error().Err(err).Str("video_id", videoID).Str("tool_name", toolName).Msg("dead letter write failed (best-effort)")
	}
}

func (svc *Service) writeOnce(ctx context.Context, videoID, toolName string, contextType store.ContextType, results []validate.Payload, lineage Lineage, idempotencyKey string) (CountsByKind, error) {
	var priorCount int
	counts := CountsByKind{}

	err := svc.store.WithTransaction(ctx, func(tx *store.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM context_records WHERE video_id = ? AND context_type = ?`, videoID, contextType)
		if err := row.Scan(&priorCount); err != nil {
			return apperrors.Wrap(apperrors.StoreTransient, "count existing records", err)
		}

		sp, err := tx.Savepoint(ctx)
		if err != nil {
			return err
		}

		for _, rec := range results {
			payload, err := json.Marshal(rec)
			if err != nil {
				_ = tx.RollbackTo(ctx, sp)
				return apperrors.Wrap(apperrors.ValidationFailure, "marshal payload", err)
			}
			params, err := json.Marshal(lineage.Parameters)
			if err != nil {
				_ = tx.RollbackTo(ctx, sp)
				return apperrors.Wrap(apperrors.ValidationFailure, "marshal lineage parameters", err)
			}

			_, err = tx.Exec(ctx,
				`INSERT OR IGNORE INTO context_records
					(context_id, video_id, context_type, timestamp_seconds, payload,
					 tool_name, tool_version, model_version, processing_params, idempotency_key)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
				uuid.New().String(), videoID, contextType, timestampOf(rec), payload,
				lineage.ToolName, lineage.ToolVersion, lineage.ModelVersion, params,
			)
			if err != nil {
				_ = tx.RollbackTo(ctx, sp)
				return apperrors.Wrap(apperrors.StoreTransient, "insert context record", err)
			}
		}

		row = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM context_records WHERE video_id = ? AND context_type = ?`, videoID, contextType)
		var newCount int
		if err := row.Scan(&newCount); err != nil {
			return apperrors.Wrap(apperrors.StoreTransient, "count records after write", err)
		}
		if newCount-priorCount < len(results) {
			_ = tx.RollbackTo(ctx, sp)
			return apperrors.New(apperrors.StoreTransient, "post-write row count did not advance by batch size")
		}

		if err := tx.Release(ctx, sp); err != nil {
			return err
		}

		if idempotencyKey != "" {
			if _, err := tx.Exec(ctx,
				`INSERT OR IGNORE INTO context_records
					(context_id, video_id, context_type, timestamp_seconds, payload, tool_name, idempotency_key)
				 VALUES (?, ?, 'idempotency', 0, '{}', ?, ?)`,
				uuid.New().String(), videoID, toolName, idempotencyKey,
			); err != nil {
				return apperrors.Wrap(apperrors.StoreTransient, "insert idempotency sentinel", err)
			}
		}

		counts[contextType] = newCount - priorCount
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.writeLineageBestEffort(ctx, videoID, lineage)

	if svc.cache != nil {
		svc.cache.InvalidatePattern(fmt.Sprintf("video:%s:*", videoID))
	}

	return counts, nil
}

// writeLineageBestEffort records a LineageRecord for the batch. Failures
// are logged, never surfaced: spec.md §4.4 step 5 explicitly keeps
// lineage writes decoupled from the data write's transaction.
func (svc *Service) writeLineageBestEffort(ctx context.Context, videoID string, lineage Lineage) {
	params, err := json.Marshal(lineage.Parameters)
	if err != nil {
		log.WithComponent("persistence").Error().Err(err).Msg("marshal lineage parameters for audit trail")
		return
	}
	_, err = svc.store.ExecuteUpdate(ctx,
		`INSERT INTO lineage_records (lineage_id, video_id, operation, tool_name, tool_version, model_version, parameters, user_id)
		 VALUES (?, ?, 'create', ?, ?, ?, ?, ?)`,
		uuid.New().String(), videoID, lineage.ToolName, lineage.ToolVersion, lineage.ModelVersion, params, lineage.UserID,
	)
	if err != nil {
		log.WithComponent("persistence").Error().Err(err).Str("video_id", videoID).Msg("lineage write failed (best-effort)")
	}
}

func (svc *Service) lookupIdempotencySentinel(ctx context.Context, videoID, toolName, idempotencyKey string) (CountsByKind, bool, error) {
	row := svc.store.DB().QueryRowContext(ctx,
		`SELECT 1 FROM context_records WHERE video_id = ? AND tool_name = ? AND idempotency_key = ? AND context_type = 'idempotency'`,
		videoID, toolName, idempotencyKey)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, apperrors.Wrap(apperrors.StoreTransient, "check idempotency sentinel", err)
	}

	contextType := toolKindRoute[toolName]
	counts, err := svc.countsFor(ctx, videoID, []store.ContextType{contextType})
	if err != nil {
		return nil, false, err
	}
	return counts, true, nil
}

func (svc *Service) countsFor(ctx context.Context, videoID string, kinds []store.ContextType) (CountsByKind, error) {
	out := CountsByKind{}
	for _, k := range kinds {
		row := svc.store.DB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM context_records WHERE video_id = ? AND context_type = ?`, videoID, k)
		var n int
		if err := row.Scan(&n); err != nil {
			return nil, apperrors.Wrap(apperrors.StoreTransient, "count records", err)
		}
		out[k] = n
	}
	return out, nil
}

func timestampOf(p validate.Payload) float64 {
	for _, field := range []string{"timestamp", "frame_timestamp", "start"} {
		if v, ok := p[field]; ok {
			if f, ok := v.(float64); ok {
				return f
			}
		}
	}
	return 0
}

// CompletenessReport is returned by VerifyVideoDataCompleteness.
type CompletenessReport struct {
	Counts   CountsByKind
	Complete bool
	Missing  []store.ContextType
}

var completenessKinds = []store.ContextType{
	store.ContextFrame, store.ContextCaption, store.ContextTranscript, store.ContextObject,
}

// VerifyVideoDataCompleteness reports per-kind counts, whether all four
// analysis kinds have at least one record, and which are missing.
func (svc *Service) VerifyVideoDataCompleteness(ctx context.Context, videoID string) (*CompletenessReport, error) {
	counts, err := svc.countsFor(ctx, videoID, completenessKinds)
	if err != nil {
		return nil, err
	}

	report := &CompletenessReport{Counts: counts, Complete: true}
	for _, kind := range completenessKinds {
		if counts[kind] == 0 {
			report.Complete = false
			report.Missing = append(report.Missing, kind)
		}
	}
	return report, nil
}

// DeleteVideoData removes all ContextRecords for a video in a single
// transaction. Lineage rows are retained per spec.md §4.4.
func (svc *Service) DeleteVideoData(ctx context.Context, videoID string) error {
	err := svc.store.WithTransaction(ctx, func(tx *store.Tx) error {
		_, err := tx.Exec(ctx, `DELETE FROM context_records WHERE video_id = ?`, videoID)
		return err
	})
	if err != nil {
		return err
	}
	if svc.cache != nil {
		svc.cache.InvalidatePattern(fmt.Sprintf("video:%s:*", videoID))
	}
	return nil
}
