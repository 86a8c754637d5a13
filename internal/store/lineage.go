// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/videoforge/insights/internal/apperrors"
)

// LineageForVideo returns every LineageRecord for a video, oldest first.
func (s *Store) LineageForVideo(ctx context.Context, videoID string) ([]LineageRecord, error) {
	rows, err := s.ExecuteQuery(ctx,
		`SELECT lineage_id, video_id, context_id, operation, tool_name, tool_version, model_version, parameters, user_id, timestamp
		 FROM lineage_records WHERE video_id = ? ORDER BY timestamp ASC`, videoID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "query lineage for video", err)
	}
	defer rows.Close()
	return scanLineageRows(rows)
}

// LineageForContext returns every LineageRecord touching one context row.
func (s *Store) LineageForContext(ctx context.Context, contextID string) ([]LineageRecord, error) {
	rows, err := s.ExecuteQuery(ctx,
		`SELECT lineage_id, video_id, context_id, operation, tool_name, tool_version, model_version, parameters, user_id, timestamp
		 FROM lineage_records WHERE context_id = ? ORDER BY timestamp ASC`, contextID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "query lineage for context", err)
	}
	defer rows.Close()
	return scanLineageRows(rows)
}

func scanLineageRows(rows *sql.Rows) ([]LineageRecord, error) {
	var out []LineageRecord
	for rows.Next() {
		var (
			lr        LineageRecord
			contextID sql.NullString
			ts        string
		)
		if err := rows.Scan(&lr.LineageID, &lr.VideoID, &contextID, &lr.Operation, &lr.ToolName,
			&lr.ToolVersion, &lr.ModelVersion, &lr.Parameters, &lr.UserID, &ts); err != nil {
			return nil, apperrors.Wrap(apperrors.StoreTransient, "scan lineage record", err)
		}
		if contextID.Valid {
			lr.ContextID = &contextID.String
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			lr.Timestamp = t
		}
		out = append(out, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.StoreTransient, "iterate lineage records", err)
	}
	return out, nil
}
