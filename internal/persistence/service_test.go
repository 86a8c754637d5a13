// SPDX-License-Identifier: MIT

package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/validate"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), store.DefaultConfig(filepath.Join(dir, "test.sqlite")))
	require.NoError(t, err)
	require.NoError(t, s.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.CreateVideo(context.Background(), &store.Video{
		VideoID: "vid-1", Filename: "a.mp4", FilePath: "/a.mp4", DurationSeconds: 10, UploadTime: time.Now().UTC(),
	}))

	return NewService(s, nil), s
}

func TestStoreToolResults_WritesAndCounts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	results := []validate.Payload{
		{"timestamp": 1.0, "frame_number": 0.0},
		{"timestamp": 2.0, "frame_number": 1.0},
	}
	counts, err := svc.StoreToolResults(ctx, "vid-1", "extract_frames", results, Lineage{ToolName: "extract_frames"}, "")
	require.NoError(t, err)
	require.Equal(t, 2, counts[store.ContextFrame])
}

func TestStoreToolResults_IdempotentReplay(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	results := []validate.Payload{{"timestamp": 1.0, "frame_number": 0.0}}
	lineage := Lineage{ToolName: "extract_frames"}

	first, err := svc.StoreToolResults(ctx, "vid-1", "extract_frames", results, lineage, "job-1")
	require.NoError(t, err)

	second, err := svc.StoreToolResults(ctx, "vid-1", "extract_frames", results, lineage, "job-1")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestStoreToolResults_RejectsUnknownTool(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.StoreToolResults(context.Background(), "vid-1", "bogus_tool", nil, Lineage{}, "")
	require.Error(t, err)
}

func TestStoreToolResults_RejectsInvalidPayload(t *testing.T) {
	svc, _ := newTestService(t)
	results := []validate.Payload{{"frame_number": 0.0}} // missing timestamp
	_, err := svc.StoreToolResults(context.Background(), "vid-1", "extract_frames", results, Lineage{}, "")
	require.Error(t, err)
}

func TestVerifyVideoDataCompleteness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	report, err := svc.VerifyVideoDataCompleteness(ctx, "vid-1")
	require.NoError(t, err)
	require.False(t, report.Complete)
	require.Len(t, report.Missing, 4)

	_, err = svc.StoreToolResults(ctx, "vid-1", "extract_frames",
		[]validate.Payload{{"timestamp": 1.0, "frame_number": 0.0}}, Lineage{ToolName: "extract_frames"}, "")
	require.NoError(t, err)

	report, err = svc.VerifyVideoDataCompleteness(ctx, "vid-1")
	require.NoError(t, err)
	require.False(t, report.Complete)
	require.Len(t, report.Missing, 3)
}

func TestDeleteVideoData(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StoreToolResults(ctx, "vid-1", "extract_frames",
		[]validate.Payload{{"timestamp": 1.0, "frame_number": 0.0}}, Lineage{ToolName: "extract_frames"}, "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteVideoData(ctx, "vid-1"))

	report, err := svc.VerifyVideoDataCompleteness(ctx, "vid-1")
	require.NoError(t, err)
	require.False(t, report.Complete)
	require.Equal(t, 0, report.Counts[store.ContextFrame])
}
