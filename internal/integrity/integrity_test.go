// SPDX-License-Identifier: MIT

package integrity

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/videoforge/insights/internal/cache"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/validate"
)

func newFixture(t *testing.T) (*store.Store, *persistence.Service) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), store.DefaultConfig(filepath.Join(dir, "test.sqlite")))
	require.NoError(t, err)
	require.NoError(t, st.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	l1, err := cache.NewLRUCache(64)
	require.NoError(t, err)
	tiered := cache.NewTiered(l1, nil, cache.NewMemoryCache(time.Minute), time.Minute)

	svc := persistence.NewService(st, tiered)
	return st, svc
}

func seedVideo(t *testing.T, st *store.Store, videoID string) {
	t.Helper()
	require.NoError(t, st.CreateVideo(context.Background(), &store.Video{
		VideoID: videoID, Filename: "a.mp4", FilePath: "/a.mp4", DurationSeconds: 10, UploadTime: time.Now().UTC(),
	}))
}

func TestConsistencyChecker_CleanVideo(t *testing.T) {
	st, svc := newFixture(t)
	seedVideo(t, st, "vid-1")

	_, err := svc.StoreToolResults(context.Background(), "vid-1", "extract_frames",
		[]validate.Payload{{"timestamp": 1.0, "frame_number": 0.0}}, persistence.Lineage{ToolName: "extract_frames"}, "")
	require.NoError(t, err)

	checker := NewConsistencyChecker(st)
	report, err := checker.Check(context.Background(), "vid-1")
	require.NoError(t, err)
	require.True(t, report.Clean())
}

func TestConsistencyChecker_UnknownVideo(t *testing.T) {
	st, _ := newFixture(t)
	checker := NewConsistencyChecker(st)
	_, err := checker.Check(context.Background(), "no-such-video")
	require.Error(t, err)
}

func TestConsistencyChecker_StageProgressionViolation(t *testing.T) {
	st, _ := newFixture(t)
	seedVideo(t, st, "vid-2")
	require.NoError(t, st.UpdateProcessingStatus(context.Background(), "vid-2", store.StatusCaptioning))

	checker := NewConsistencyChecker(st)
	report, err := checker.Check(context.Background(), "vid-2")
	require.NoError(t, err)
	require.False(t, report.Clean())
	require.Equal(t, "stage_progression", report.Violations[0].Rule)
}

func TestReconciler_AdvancesStaleStatus(t *testing.T) {
	st, svc := newFixture(t)
	seedVideo(t, st, "vid-3")

	_, err := svc.StoreToolResults(context.Background(), "vid-3", "extract_frames",
		[]validate.Payload{{"timestamp": 1.0, "frame_number": 0.0}}, persistence.Lineage{ToolName: "extract_frames"}, "")
	require.NoError(t, err)
	_, err = svc.StoreToolResults(context.Background(), "vid-3", "caption_frames",
		[]validate.Payload{{"frame_timestamp": 1.0, "text": "a cat"}}, persistence.Lineage{ToolName: "caption_frames"}, "")
	require.NoError(t, err)

	reconciler := NewReconciler(st, svc)
	result, err := reconciler.Reconcile(context.Background(), "vid-3")
	require.NoError(t, err)
	require.True(t, result.Changed)
	require.Equal(t, store.StatusAnalyzing, result.NewStatus)

	again, err := reconciler.Reconcile(context.Background(), "vid-3")
	require.NoError(t, err)
	require.False(t, again.Changed)
}

func TestReconciler_NeverRegressesComplete(t *testing.T) {
	st, svc := newFixture(t)
	seedVideo(t, st, "vid-4")
	require.NoError(t, st.UpdateProcessingStatus(context.Background(), "vid-4", store.StatusComplete))

	reconciler := NewReconciler(st, svc)
	result, err := reconciler.Reconcile(context.Background(), "vid-4")
	require.NoError(t, err)
	require.False(t, result.Changed)
	require.Equal(t, store.StatusComplete, result.NewStatus)
}

func TestRetryQueue_RequeueResolvesDeadLetter(t *testing.T) {
	st, svc := newFixture(t)
	seedVideo(t, st, "vid-5")

	id, err := st.InsertDeadLetter(context.Background(), "vid-5", "extract_frames",
		[]byte(`[{"timestamp":1.0,"frame_number":0.0}]`), "post-write row count did not advance", 4)
	require.NoError(t, err)

	queue := NewRetryQueue(st, svc)
	counts, err := queue.Requeue(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 1, counts[store.ContextFrame])

	letters, err := queue.ListDeadLetters(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, letters, "resolved dead letters should not appear in the unresolved listing")

	_, err = queue.Requeue(context.Background(), id)
	require.Error(t, err, "requeuing an already-resolved dead letter should fail")
}

func TestLineageQuery_ForVideo(t *testing.T) {
	st, svc := newFixture(t)
	seedVideo(t, st, "vid-6")

	_, err := svc.StoreToolResults(context.Background(), "vid-6", "extract_frames",
		[]validate.Payload{{"timestamp": 1.0, "frame_number": 0.0}}, persistence.Lineage{ToolName: "extract_frames"}, "")
	require.NoError(t, err)

	q := NewLineageQuery(st)
	records, err := q.ForVideo(context.Background(), "vid-6")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "extract_frames", records[0].ToolName)
}
