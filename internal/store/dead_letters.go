// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/videoforge/insights/internal/apperrors"
)

// InsertDeadLetter records a persistence write that exhausted its retry
// budget, for later operator inspection or reconciliation replay.
func (s *Store) InsertDeadLetter(ctx context.Context, videoID, toolName string, payload []byte, failureReason string, attempts int) (string, error) {
	id := uuid.New().String()
	_, err := s.ExecuteUpdate(ctx,
		`INSERT INTO dead_letters (dead_letter_id, video_id, tool_name, payload, failure_reason, attempts)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, videoID, toolName, payload, failureReason, attempts,
	)
	if err != nil {
		return "", apperrors.Wrap(apperrors.StoreTransient, "insert dead letter", err)
	}
	return id, nil
}

// ListDeadLetters returns dead letters for a video, or every unresolved
// dead letter when videoID is empty, most recent first.
func (s *Store) ListDeadLetters(ctx context.Context, videoID string) ([]DeadLetter, error) {
	var rows *sql.Rows
	var err error
	if videoID == "" {
		rows, err = s.ExecuteQuery(ctx,
			`SELECT dead_letter_id, video_id, tool_name, payload, failure_reason, attempts, created_at, resolved_at
			 FROM dead_letters WHERE resolved_at IS NULL ORDER BY created_at DESC`)
	} else {
		rows, err = s.ExecuteQuery(ctx,
			`SELECT dead_letter_id, video_id, tool_name, payload, failure_reason, attempts, created_at, resolved_at
			 FROM dead_letters WHERE video_id = ? ORDER BY created_at DESC`, videoID)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "list dead letters", err)
	}
	defer rows.Close()

	var out []DeadLetter
	for rows.Next() {
		dl, err := scanDeadLetter(rows)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.StoreTransient, "scan dead letter", err)
		}
		out = append(out, *dl)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "iterate dead letters", err)
	}
	return out, nil
}

// GetDeadLetter loads a single dead letter by id.
func (s *Store) GetDeadLetter(ctx context.Context, id string) (*DeadLetter, error) {
	rows, err := s.ExecuteQuery(ctx,
		`SELECT dead_letter_id, video_id, tool_name, payload, failure_reason, attempts, created_at, resolved_at
		 FROM dead_letters WHERE dead_letter_id = ?`, id)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "query dead letter", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, apperrors.New(apperrors.NotFound, "dead letter not found").WithDetails(map[string]any{"dead_letter_id": id})
	}
	dl, err := scanDeadLetter(rows)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "scan dead letter", err)
	}
	return dl, nil
}

// ResolveDeadLetter marks a dead letter as resolved (requeued or discarded).
func (s *Store) ResolveDeadLetter(ctx context.Context, id string, at time.Time) error {
	n, err := s.ExecuteUpdate(ctx,
		`UPDATE dead_letters SET resolved_at = ? WHERE dead_letter_id = ? AND resolved_at IS NULL`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return apperrors.Wrap(apperrors.StoreTransient, "resolve dead letter", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.NotFound, "dead letter not found or already resolved").WithDetails(map[string]any{"dead_letter_id": id})
	}
	return nil
}

func scanDeadLetter(rows *sql.Rows) (*DeadLetter, error) {
	var (
		dl         DeadLetter
		createdAt  string
		resolvedAt sql.NullString
	)
	if err := rows.Scan(&dl.DeadLetterID, &dl.VideoID, &dl.ToolName, &dl.Payload, &dl.FailureReason,
		&dl.Attempts, &createdAt, &resolvedAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		dl.CreatedAt = t
	}
	if resolvedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, resolvedAt.String); err == nil {
			dl.ResolvedAt = &t
		}
	}
	return &dl, nil
}
