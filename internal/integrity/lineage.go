// SPDX-License-Identifier: MIT

package integrity

import (
	"context"

	"github.com/videoforge/insights/internal/store"
)

// LineageQuery reads the append-only provenance trail, grounded on
// other_examples' lineage_store.go idempotency-and-audit pattern: we
// keep its append-only semantics and drop its Postgres specifics in
// favor of the Store's SQLite API.
type LineageQuery struct {
	store *store.Store
}

// NewLineageQuery builds a LineageQuery over st.
func NewLineageQuery(st *store.Store) *LineageQuery {
	return &LineageQuery{store: st}
}

// ForVideo returns every lineage record for a video, oldest first.
func (q *LineageQuery) ForVideo(ctx context.Context, videoID string) ([]store.LineageRecord, error) {
	return q.store.LineageForVideo(ctx, videoID)
}

// ForContext returns every lineage record touching one context row.
func (q *LineageQuery) ForContext(ctx context.Context, contextID string) ([]store.LineageRecord, error) {
	return q.store.LineageForContext(ctx, contextID)
}
