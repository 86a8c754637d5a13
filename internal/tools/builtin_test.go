// SPDX-License-Identifier: MIT

package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterBuiltinTools_AllFourPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/extract_frames":
			json.NewEncoder(w).Encode(map[string]any{"frames": []map[string]any{{"timestamp": 1.0, "frame_number": 0.0}}})
		case "/caption_frames":
			json.NewEncoder(w).Encode(map[string]any{"captions": []map[string]any{{"timestamp": 1.0, "text": "a cat"}}})
		case "/transcribe_audio":
			json.NewEncoder(w).Encode(map[string]any{"segments": []map[string]any{{"start_time": 0.0, "end_time": 1.0, "text": "hello"}}})
		case "/detect_objects":
			json.NewEncoder(w).Encode(map[string]any{"detections": []map[string]any{{"timestamp": 1.0, "label": "cat", "confidence": 0.9}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	registry := NewRegistry()
	RegisterBuiltinTools(registry, NewModelClient(srv.URL, 5*time.Second))

	for _, name := range []string{"extract_frames", "caption_frames", "transcribe_audio", "detect_objects"} {
		_, ok := registry.Get(name)
		require.True(t, ok, "expected tool %q to be registered", name)
	}
}

func TestRegisterBuiltinTools_ExtractFramesInvokesModelServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/extract_frames", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"frames": []map[string]any{
			{"timestamp": 0.0, "frame_number": 0.0},
			{"timestamp": 1.0, "frame_number": 1.0},
		}})
	}))
	t.Cleanup(srv.Close)

	registry := NewRegistry()
	RegisterBuiltinTools(registry, NewModelClient(srv.URL, 5*time.Second))

	tool, ok := registry.Get("extract_frames")
	require.True(t, ok)

	result, err := tool.Execute(context.Background(), "vid-1", map[string]any{"interval_seconds": 1.0}, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
}
