// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/videoforge/insights/internal/apperrors"
)

// IntegrityMode selects the depth of the SQLite structural check.
type IntegrityMode string

const (
	// IntegrityQuick runs PRAGMA quick_check: fast, catches most corruption.
	IntegrityQuick IntegrityMode = "quick"
	// IntegrityFull runs PRAGMA integrity_check: slower, exhaustive.
	IntegrityFull IntegrityMode = "full"
)

// VerifyIntegrity runs SQLite's own structural corruption check against
// the open database. A nil, nil return means the database is healthy;
// otherwise the returned strings are the diagnostic rows SQLite emitted.
func (s *Store) VerifyIntegrity(ctx context.Context, mode IntegrityMode) ([]string, error) {
	pragma := "PRAGMA quick_check"
	if mode == IntegrityFull {
		pragma = "PRAGMA integrity_check"
	}

	rows, err := s.db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.StoreFatal, "run integrity pragma", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return nil, apperrors.Wrap(apperrors.StoreFatal, "scan integrity result", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.StoreFatal, "iterate integrity results", err)
	}

	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return results, nil
}

// VerifySchemaVersion reports a StoreFatal error if the on-disk schema
// version does not match currentSchemaVersion, since this process is not
// prepared to migrate a database written by another version.
func (s *Store) VerifySchemaVersion(ctx context.Context) error {
	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if version != currentSchemaVersion {
		return apperrors.New(apperrors.StoreFatal, fmt.Sprintf(
			"schema version mismatch: database has %d, binary expects %d", version, currentSchemaVersion))
	}
	return nil
}
