// SPDX-License-Identifier: MIT

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/videoforge/insights/internal/store"
)

// ModelClient calls an external ML model server over HTTP. The model
// itself is out of scope (spec.md §1): every tool below is a thin
// RPC-shaped wrapper, modeled after adverant VideoAgent's
// MageAgentClient, that the operator points at a real model endpoint.
type ModelClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewModelClient builds a client against baseURL with the given
// per-request timeout as an upper bound (the dispatcher's own timeout
// governs the overall call budget).
func NewModelClient(baseURL string, timeout time.Duration) *ModelClient {
	return &ModelClient{baseURL: baseURL, httpClient: &http.Client{Timeout: timeout}}
}

func (c *ModelClient) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("model request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// RegisterBuiltinTools wires the four spec.md §3 analysis tools into
// registry, each dispatching to client at its own endpoint.
func RegisterBuiltinTools(registry *Registry, client *ModelClient) {
	registry.Register(Tool{
		Name:        "extract_frames",
		Description: "Extract sampled frames from a video at a fixed interval.",
		ParamSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"interval_seconds": map[string]any{"type": "number"},
				"max_frames":       map[string]any{"type": "integer"},
			},
		},
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (Result, error) {
			var out struct {
				Frames []map[string]any `json:"frames"`
			}
			if err := client.post(ctx, "/extract_frames", map[string]any{"video_id": videoID, "params": params}, &out); err != nil {
				return Result{}, err
			}
			return Result{Records: out.Frames}, nil
		},
	})

	registry.Register(Tool{
		Name:        "caption_frames",
		Description: "Generate a natural-language caption for each extracted frame.",
		ParamSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"model_id": map[string]any{"type": "string"}},
		},
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (Result, error) {
			rows, err := st.ExecuteQuery(ctx,
				`SELECT payload FROM context_records WHERE video_id = ? AND context_type = 'frame' ORDER BY timestamp_seconds`,
				videoID)
			if err != nil {
				return Result{}, fmt.Errorf("load frames for captioning: %w", err)
			}
			defer rows.Close()

			var frames []json.RawMessage
			for rows.Next() {
				var raw []byte
				if err := rows.Scan(&raw); err != nil {
					return Result{}, fmt.Errorf("scan frame row: %w", err)
				}
				frames = append(frames, json.RawMessage(raw))
			}
			if err := rows.Err(); err != nil {
				return Result{}, fmt.Errorf("iterate frame rows: %w", err)
			}

			var out struct {
				Captions []map[string]any `json:"captions"`
			}
			if err := client.post(ctx, "/caption_frames", map[string]any{"video_id": videoID, "frames": frames, "params": params}, &out); err != nil {
				return Result{}, err
			}
			return Result{Records: out.Captions}, nil
		},
	})

	registry.Register(Tool{
		Name:        "transcribe_audio",
		Description: "Transcribe the video's audio track to timestamped text segments.",
		ParamSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"language": map[string]any{"type": "string"}},
		},
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (Result, error) {
			var out struct {
				Segments []map[string]any `json:"segments"`
			}
			if err := client.post(ctx, "/transcribe_audio", map[string]any{"video_id": videoID, "params": params}, &out); err != nil {
				return Result{}, err
			}
			return Result{Records: out.Segments}, nil
		},
	})

	registry.Register(Tool{
		Name:        "detect_objects",
		Description: "Detect and localize objects within each extracted frame.",
		ParamSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"confidence_threshold": map[string]any{"type": "number"}},
		},
		Execute: func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (Result, error) {
			var out struct {
				Detections []map[string]any `json:"detections"`
			}
			if err := client.post(ctx, "/detect_objects", map[string]any{"video_id": videoID, "params": params}, &out); err != nil {
				return Result{}, err
			}
			return Result{Records: out.Detections}, nil
		},
	})
}
