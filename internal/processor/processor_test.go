// SPDX-License-Identifier: MIT

package processor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/videoforge/insights/internal/cache"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/tools"
)

func newTestProcessor(t *testing.T) (*Processor, *tools.Registry, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), store.DefaultConfig(filepath.Join(dir, "test.sqlite")))
	require.NoError(t, err)
	require.NoError(t, st.InitializeSchema(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.CreateVideo(context.Background(), &store.Video{
		VideoID: "vid-1", Filename: "a.mp4", FilePath: "/a.mp4", DurationSeconds: 10, UploadTime: time.Now().UTC(),
	}))

	l1, err := cache.NewLRUCache(64)
	require.NoError(t, err)
	tiered := cache.NewTiered(l1, nil, cache.NewMemoryCache(time.Minute), time.Minute)
	svc := persistence.NewService(st, tiered)

	registry := tools.NewRegistry()
	breakers := tools.NewBreakerSet(5, time.Minute)
	dispatcher := tools.NewDispatcher(registry, breakers, tiered, svc, st, 5*time.Second)

	return New(st, dispatcher), registry, st
}

func registerFrameExtractor(r *tools.Registry, fail bool) {
	r.Register(tools.Tool{
		Name: "extract_frames",
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (tools.Result, error) {
			if fail {
				return tools.Result{}, errors.New("extraction failed")
			}
			return tools.Result{Records: []map[string]any{{"timestamp": 1.0, "frame_number": 0.0}}}, nil
		},
	})
}

func registerCaptioner(r *tools.Registry, fail bool) {
	r.Register(tools.Tool{
		Name: "caption_frames",
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (tools.Result, error) {
			if fail {
				return tools.Result{}, errors.New("captioning failed")
			}
			return tools.Result{Records: []map[string]any{{"frame_timestamp": 1.0, "text": "a cat"}}}, nil
		},
	})
}

func registerAnalyzers(r *tools.Registry, transcribeFail, detectFail bool) {
	r.Register(tools.Tool{
		Name: "transcribe_audio",
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (tools.Result, error) {
			if transcribeFail {
				return tools.Result{}, errors.New("transcription failed")
			}
			return tools.Result{Records: []map[string]any{{"start": 0.0, "end": 1.0, "text": "hi"}}}, nil
		},
	})
	r.Register(tools.Tool{
		Name: "detect_objects",
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (tools.Result, error) {
			if detectFail {
				return tools.Result{}, errors.New("detection failed")
			}
			return tools.Result{Records: []map[string]any{{"frame_timestamp": 1.0, "objects": []any{map[string]any{"class_name": "cat", "confidence": 0.9}}}}}, nil
		},
	})
}

func TestProcessor_RunCompletesAllStages(t *testing.T) {
	p, registry, st := newTestProcessor(t)
	registerFrameExtractor(registry, false)
	registerCaptioner(registry, false)
	registerAnalyzers(registry, false, false)

	events := p.Subscribe("vid-1")
	p.Run(context.Background(), "vid-1")

	var seen []Stage
	for evt := range events {
		seen = append(seen, evt.Stage)
	}
	require.Equal(t, []Stage{StageExtracting, StageCaptioning, StageAnalyzing, StageComplete}, seen)

	v, err := st.GetVideo(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusComplete, v.ProcessingStatus)

	_, active := p.GetProgress("vid-1")
	require.False(t, active, "terminal stage must remove the video from the active set")
}

func TestProcessor_RunFailsOnExtractionError(t *testing.T) {
	p, registry, st := newTestProcessor(t)
	registerFrameExtractor(registry, true)

	events := p.Subscribe("vid-1")
	p.Run(context.Background(), "vid-1")

	var last Stage
	for evt := range events {
		last = evt.Stage
	}
	require.Equal(t, StageError, last)

	v, err := st.GetVideo(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusError, v.ProcessingStatus)
}

func TestProcessor_AnalyzingPartialSuccessStillCompletes(t *testing.T) {
	p, registry, st := newTestProcessor(t)
	registerFrameExtractor(registry, false)
	registerCaptioner(registry, false)
	registerAnalyzers(registry, true, false)

	events := p.Subscribe("vid-1")
	p.Run(context.Background(), "vid-1")

	var last Stage
	for evt := range events {
		last = evt.Stage
	}
	require.Equal(t, StageComplete, last, "at least one analyzing sub-task succeeding must still reach COMPLETE")

	v, err := st.GetVideo(context.Background(), "vid-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusComplete, v.ProcessingStatus)
}
