// SPDX-License-Identifier: MIT

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/videoforge/insights/internal/api/middleware"
	"github.com/videoforge/insights/internal/cache"
	"github.com/videoforge/insights/internal/health"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/processor"
	"github.com/videoforge/insights/internal/queue"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/tools"
)

func newTestServer(t *testing.T) *Server {
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
	registry.Register(tools.Tool{
		Name:        "extract_frames",
		Description: "extracts frames at a fixed interval",
		ParamSchema: map[string]any{"type": "object"},
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (tools.Result, error) {
			return tools.Result{Records: []map[string]any{{"timestamp": 1.0, "frame_number": 0.0}}}, nil
		},
	})
	breakers := tools.NewBreakerSet(3, time.Minute)
	dispatcher := tools.NewDispatcher(registry, breakers, tiered, svc, st, 5*time.Second)
	proc := processor.New(st, dispatcher)
	q := queue.New(queue.DefaultConfig(), func(ctx context.Context, videoID, videoPath string) {})
	q.StartWorkers()
	t.Cleanup(func() { q.Shutdown(time.Second) })

	mgr := health.NewManager("test")

	return NewServer(Deps{
		Store:        st,
		Registry:     registry,
		Dispatcher:   dispatcher,
		Processor:    proc,
		Queue:        q,
		Persistence:  svc,
		Cache:        tiered,
		Health:       mgr,
		QueueWorkers: queue.DefaultConfig().Workers,
	})
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	return newTestServer(t).Router(middleware.StackConfig{})
}

func decodeEnvelope(t *testing.T, body []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestHandleIndex(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	require.True(t, env.Success)
}

func TestHandleListTools(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/tools", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	require.True(t, env.Success)
}

func TestHandleExecuteTool_UnknownTool(t *testing.T) {
	r := testRouter(t)
	body := []byte(`{"video_id":"vid-1","parameters":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/tools/nonexistent/execute", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	require.False(t, env.Success)
	require.Equal(t, "TOOL_NOT_FOUND", env.Error.Code)
}

func TestHandleExecuteTool_PathTraversalRejected(t *testing.T) {
	r := testRouter(t)
	body := []byte(`{"video_id":"../etc/passwd","parameters":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/tools/extract_frames/execute", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleExecuteTool_Success(t *testing.T) {
	r := testRouter(t)
	body := []byte(`{"video_id":"vid-1","parameters":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/tools/extract_frames/execute", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	require.True(t, env.Success)
}

func TestHandleProcessProgressive_RejectsBadExtension(t *testing.T) {
	r := testRouter(t)
	body := []byte(`{"video_path":"/videos/clip.exe"}`)
	req := httptest.NewRequest(http.MethodPost, "/videos/vid-1/process-progressive", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleProcessProgressive_Accepted(t *testing.T) {
	r := testRouter(t)
	body := []byte(`{"video_path":"/videos/clip.mp4"}`)
	req := httptest.NewRequest(http.MethodPost, "/videos/vid-2/process-progressive?priority=high", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	require.True(t, env.Success)
}

func TestHandleVideoProgress_NotProcessing(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/videos/vid-1/progress", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data progressResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.False(t, env.Data.Processing)
}

func TestHandleVideoStatus(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/videos/vid-1/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w.Body.Bytes())
	require.True(t, env.Success)
}

func TestHandleQueueStatus(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/queue/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data queueStatusResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, 2, env.Data.Workers)
}

func TestHandleQueueJob_NotFound(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/queue/job/no-such-video", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleCacheStatsAndClear(t *testing.T) {
	r := testRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/cache/stats", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/cache", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/cache/videos/vid-1", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
