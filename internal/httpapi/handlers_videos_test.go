// SPDX-License-Identifier: MIT

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/videoforge/insights/internal/api/middleware"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/tools"
)

func TestHandleProcessVideo_CompleteWhenAllToolsSucceed(t *testing.T) {
	r := testRouter(t)
	body := []byte(`{"tools":["extract_frames"]}`)
	req := httptest.NewRequest(http.MethodPost, "/videos/vid-1/process", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "complete", env.Data.Status)
}

func TestHandleProcessVideo_ExplicitEmptyToolsIsComplete(t *testing.T) {
	r := testRouter(t)
	body := []byte(`{"tools":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/videos/vid-1/process", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data struct {
			Status  string         `json:"status"`
			Results map[string]any `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "complete", env.Data.Status)
	require.Empty(t, env.Data.Results, "an explicit empty tools list must dispatch nothing")
}

func TestHandleProcessVideo_OmittedToolsRunsEveryRegisteredTool(t *testing.T) {
	r := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/videos/vid-1/process", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data struct {
			Results map[string]any `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Contains(t, env.Data.Results, "extract_frames")
}

func TestHandleProcessVideo_PartialStatusWhenOneToolFails(t *testing.T) {
	s := newTestServer(t)
	s.deps.Registry.Register(tools.Tool{
		Name: "detect_objects",
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (tools.Result, error) {
			return tools.Result{}, errors.New("model unavailable")
		},
	})
	r := s.Router(middleware.StackConfig{})

	body := []byte(`{"tools":["extract_frames","detect_objects"]}`)
	req := httptest.NewRequest(http.MethodPost, "/videos/vid-1/process", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data struct {
			Status string         `json:"status"`
			Errors map[string]any `json:"errors"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "partial", env.Data.Status)
	require.Contains(t, env.Data.Errors, "detect_objects")
}
