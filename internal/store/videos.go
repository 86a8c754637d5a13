// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/videoforge/insights/internal/apperrors"
)

// CreateVideo inserts a new Video row in pending status.
func (s *Store) CreateVideo(ctx context.Context, v *Video) error {
	_, err := s.ExecuteUpdate(ctx,
		`INSERT INTO videos (video_id, filename, file_path, duration_seconds, upload_time, processing_status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.VideoID, v.Filename, v.FilePath, v.DurationSeconds, v.UploadTime.UTC().Format(time.RFC3339Nano), StatusPending,
	)
	return err
}

// GetVideo loads a single video by id, including soft-deleted ones.
func (s *Store) GetVideo(ctx context.Context, videoID string) (*Video, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT video_id, filename, file_path, duration_seconds, upload_time, processing_status, thumbnail_path, deleted_at
		 FROM videos WHERE video_id = ?`, videoID)

	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.New(apperrors.NotFound, "video not found").WithDetails(map[string]any{"video_id": videoID})
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "scan video", err)
	}
	return v, nil
}

func scanVideo(row *sql.Row) (*Video, error) {
	var (
		v             Video
		uploadTime    string
		thumbnailPath sql.NullString
		deletedAt     sql.NullString
	)
	if err := row.Scan(&v.VideoID, &v.Filename, &v.FilePath, &v.DurationSeconds, &uploadTime,
		&v.ProcessingStatus, &thumbnailPath, &deletedAt); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, uploadTime); err == nil {
		v.UploadTime = t
	}
	if thumbnailPath.Valid {
		v.ThumbnailPath = &thumbnailPath.String
	}
	if deletedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, deletedAt.String); err == nil {
			v.DeletedAt = &t
		}
	}
	return &v, nil
}

// UpdateProcessingStatus advances a video's processing_status. The
// progressive processor is the exclusive owner of this transition.
func (s *Store) UpdateProcessingStatus(ctx context.Context, videoID string, status ProcessingStatus) error {
	n, err := s.ExecuteUpdate(ctx,
		`UPDATE videos SET processing_status = ? WHERE video_id = ?`, status, videoID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.New(apperrors.NotFound, "video not found").WithDetails(map[string]any{"video_id": videoID})
	}
	return nil
}

// SoftDeleteVideo marks a video as deleted without removing its rows.
func (s *Store) SoftDeleteVideo(ctx context.Context, videoID string, at time.Time) error {
	n, err := s.ExecuteUpdate(ctx,
		`UPDATE videos SET deleted_at = ? WHERE video_id = ? AND deleted_at IS NULL`,
		at.UTC().Format(time.RFC3339Nano), videoID)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.New(apperrors.NotFound, "video not found or already deleted").WithDetails(map[string]any{"video_id": videoID})
	}
	return nil
}

// ListActiveVideoIDs returns every non-deleted video not yet in a
// terminal processing_status, for the integrity Reconciler's periodic
// sweep.
func (s *Store) ListActiveVideoIDs(ctx context.Context) ([]string, error) {
	rows, err := s.ExecuteQuery(ctx,
		`SELECT video_id FROM videos WHERE deleted_at IS NULL AND processing_status NOT IN (?, ?)`,
		StatusComplete, StatusError)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "list active videos", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.Wrap(apperrors.StoreTransient, "scan active video id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "iterate active videos", err)
	}
	return ids, nil
}

// VideoExists reports whether videoID references a live (non-deleted) Video.
func (s *Store) VideoExists(ctx context.Context, videoID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM videos WHERE video_id = ? AND deleted_at IS NULL`, videoID)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Wrap(apperrors.StoreTransient, "check video existence", err)
	}
	return true, nil
}
