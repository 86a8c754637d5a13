// SPDX-License-Identifier: MIT

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/persistence"
)

type toolDescriptor struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	ParametersSchema map[string]any `json:"parameters_schema"`
}

// handleListTools implements GET /tools.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	list := s.deps.Registry.List()
	out := make([]toolDescriptor, 0, len(list))
	for _, t := range list {
		out = append(out, toolDescriptor{Name: t.Name, Description: t.Description, ParametersSchema: t.ParamSchema})
	}
	respondOK(w, r, start, out)
}

type executeToolRequest struct {
	VideoID    string         `json:"video_id"`
	Parameters map[string]any `json:"parameters"`
}

type executeToolResponse struct {
	Status        string  `json:"status"`
	Result        any     `json:"result,omitempty"`
	Cached        bool    `json:"cached"`
	ExecutionTime float64 `json:"execution_time"`
}

// handleExecuteTool implements POST /tools/{tool_name}/execute.
func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	toolName := chi.URLParam(r, "tool_name")

	body, err := readLimitedJSON(r.Body, maxBodyBytes)
	if err != nil {
		respondErr(w, r, start, err)
		return
	}

	var req executeToolRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondErr(w, r, start, apperrors.Wrap(apperrors.ValidationFailure, "decode request body", err))
		return
	}

	if err := validateVideoID(req.VideoID); err != nil {
		respondErr(w, r, start, err)
		return
	}

	paramsJSON, err := json.Marshal(req.Parameters)
	if err != nil {
		respondErr(w, r, start, apperrors.Wrap(apperrors.ValidationFailure, "encode parameters", err))
		return
	}
	if int64(len(paramsJSON)) > maxParamsBytes {
		respondErr(w, r, start, apperrors.Validation("parameters", "exceeds 1MB size limit"))
		return
	}

	if _, ok := s.deps.Registry.Get(toolName); !ok {
		respondErr(w, r, start, apperrors.New(apperrors.NotFound, "unknown tool").WithDetails(map[string]any{"tool_name": toolName}))
		return
	}

	lineage := persistence.Lineage{ToolName: toolName, Parameters: req.Parameters}
	inv := s.deps.Dispatcher.Invoke(r.Context(), toolName, req.VideoID, req.Parameters, lineage, "")
	if inv.Err != nil {
		respondErr(w, r, start, inv.Err)
		return
	}

	respondOK(w, r, start, executeToolResponse{
		Status:        "success",
		Result:        inv.Counts,
		Cached:        inv.Cached,
		ExecutionTime: time.Since(start).Seconds(),
	})
}
