// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/videoforge/insights/internal/apperrors"
)

const currentSchemaVersion = 1

// schemaStatements are executed in order inside a single transaction.
// CREATE TABLE/INDEX IF NOT EXISTS makes the whole set idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
	`CREATE TABLE IF NOT EXISTS videos (
		video_id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		file_path TEXT NOT NULL,
		duration_seconds REAL NOT NULL CHECK(duration_seconds > 0),
		upload_time TEXT NOT NULL,
		processing_status TEXT NOT NULL DEFAULT 'pending'
			CHECK(processing_status IN ('pending','extracting','captioning','analyzing','complete','error')),
		thumbnail_path TEXT,
		deleted_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS context_records (
		context_id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL REFERENCES videos(video_id),
		context_type TEXT NOT NULL
			CHECK(context_type IN ('frame','caption','transcript','object','idempotency')),
		timestamp_seconds REAL NOT NULL CHECK(timestamp_seconds >= 0),
		payload TEXT NOT NULL,
		tool_name TEXT NOT NULL DEFAULT '',
		tool_version TEXT NOT NULL DEFAULT '',
		model_version TEXT NOT NULL DEFAULT '',
		processing_params TEXT NOT NULL DEFAULT '{}',
		idempotency_key TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		UNIQUE(video_id, tool_name, idempotency_key)
	)`,
	`CREATE TABLE IF NOT EXISTS lineage_records (
		lineage_id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL REFERENCES videos(video_id),
		context_id TEXT REFERENCES context_records(context_id),
		operation TEXT NOT NULL CHECK(operation IN ('create','reprocess')),
		tool_name TEXT NOT NULL,
		tool_version TEXT NOT NULL DEFAULT '',
		model_version TEXT NOT NULL DEFAULT '',
		parameters TEXT NOT NULL DEFAULT '{}',
		user_id TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		dead_letter_id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		payload TEXT NOT NULL,
		failure_reason TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
		resolved_at TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_context_video_timestamp
		ON context_records(video_id, timestamp_seconds DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_context_video_type_timestamp
		ON context_records(video_id, context_type, timestamp_seconds)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_processing_status
		ON videos(processing_status)`,
	`CREATE INDEX IF NOT EXISTS idx_videos_deleted_at
		ON videos(deleted_at)`,
	`CREATE INDEX IF NOT EXISTS idx_lineage_video_timestamp
		ON lineage_records(video_id, timestamp DESC)`,
}

// InitializeSchema idempotently creates all tables, indexes, and the
// schema-version ledger, then records the current version if the ledger
// is empty. Foreign-key enforcement is assumed ON (set at Open via
// pragma) for the duration of this call.
func (s *Store) InitializeSchema(ctx context.Context) error {
	return s.WithTransaction(ctx, func(tx *Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return apperrors.Wrap(apperrors.StoreFatal, "apply schema statement", err)
			}
		}

		row := tx.QueryRow(ctx, "SELECT COUNT(*) FROM schema_version")
		var count int
		if err := row.Scan(&count); err != nil {
			return apperrors.Wrap(apperrors.StoreFatal, "count schema_version rows", err)
		}
		if count == 0 {
			if _, err := tx.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
				return apperrors.Wrap(apperrors.StoreFatal, "seed schema_version", err)
			}
		}
		return nil
	})
}

// SchemaVersion returns the most recently recorded schema version.
// A mismatch against currentSchemaVersion is a fatal condition the
// caller should surface to the operator rather than attempt to migrate
// automatically.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1")
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, apperrors.Wrap(apperrors.StoreFatal, "read schema version", err)
	}
	return version, nil
}
