// SPDX-License-Identifier: MIT

package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/processor"
	"github.com/videoforge/insights/internal/queue"
)

type processRequest struct {
	// Tools is nil when the field is omitted from the request body
	// (dispatch every registered tool) and non-nil-but-empty when the
	// caller explicitly sends "tools": [] (dispatch nothing), per
	// spec.md §8's boundary case.
	Tools []string `json:"tools"`
}

type processResult struct {
	Status string `json:"status"`
	Counts any    `json:"counts,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleProcessVideo implements POST /videos/{video_id}/process: a batch
// dispatch of named tools (or every registered tool, if the tools field is omitted)
// against one video, per spec.md §6.
func (s *Server) handleProcessVideo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	videoID := chi.URLParam(r, "video_id")
	if err := validateVideoID(videoID); err != nil {
		respondErr(w, r, start, err)
		return
	}

	var req processRequest
	body, err := readLimitedJSON(r.Body, maxBodyBytes)
	if err != nil {
		respondErr(w, r, start, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			respondErr(w, r, start, apperrors.Wrap(apperrors.ValidationFailure, "decode request body", err))
			return
		}
	}

	toolNames := req.Tools
	if toolNames == nil {
		for _, t := range s.deps.Registry.List() {
			toolNames = append(toolNames, t.Name)
		}
	}

	results := s.deps.Dispatcher.ProcessVideo(r.Context(), videoID, toolNames, nil, persistence.Lineage{})

	out := make(map[string]processResult, len(results))
	errs := make(map[string]string)
	for name, inv := range results {
		if inv.Err != nil {
			out[name] = processResult{Status: "error", Error: inv.Err.Error()}
			errs[name] = inv.Err.Error()
			continue
		}
		out[name] = processResult{Status: "success", Counts: inv.Counts}
	}

	respondOK(w, r, start, map[string]any{"status": batchStatus(len(results), len(errs)), "results": out, "errors": errs})
}

// batchStatus derives the spec.md §7 aggregate status for a batch tool
// dispatch: "complete" when nothing failed (including the empty-tools
// case), "error" when every dispatched tool failed, "partial" otherwise.
func batchStatus(total, failed int) string {
	switch {
	case failed == 0:
		return "complete"
	case failed == total:
		return "error"
	default:
		return "partial"
	}
}

type processProgressiveRequest struct {
	VideoPath string `json:"video_path"`
}

type stagePlanEntry struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
}

var stagePlan = []stagePlanEntry{
	{Stage: string(processor.StageExtracting), Percent: 0},
	{Stage: string(processor.StageCaptioning), Percent: 33},
	{Stage: string(processor.StageAnalyzing), Percent: 66},
	{Stage: string(processor.StageComplete), Percent: 100},
}

type processProgressiveResponse struct {
	VideoID        string           `json:"video_id"`
	Priority       string           `json:"priority"`
	Status         string           `json:"status"`
	QueuedPosition int              `json:"queued_position"`
	StagePlan      []stagePlanEntry `json:"stage_plan"`
}

// handleProcessProgressive implements POST
// /videos/{video_id}/process-progressive: enqueues a progressive-processing
// Job at the requested priority and reports its place in the queue.
func (s *Server) handleProcessProgressive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	videoID := chi.URLParam(r, "video_id")
	if err := validateVideoID(videoID); err != nil {
		respondErr(w, r, start, err)
		return
	}

	body, err := readLimitedJSON(r.Body, maxBodyBytes)
	if err != nil {
		respondErr(w, r, start, err)
		return
	}
	var req processProgressiveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondErr(w, r, start, apperrors.Wrap(apperrors.ValidationFailure, "decode request body", err))
		return
	}
	if err := validateVideoPath(req.VideoPath); err != nil {
		respondErr(w, r, start, err)
		return
	}

	priority, err := parsePriority(r.URL.Query().Get("priority"))
	if err != nil {
		respondErr(w, r, start, err)
		return
	}

	job := s.deps.Queue.AddJob(videoID, req.VideoPath, priority)

	_, queued, _ := s.deps.Queue.Snapshot()

	respondStatus(w, r, start, http.StatusAccepted, processProgressiveResponse{
		VideoID:        job.VideoID,
		Priority:       job.Priority.String(),
		Status:         string(job.Status),
		QueuedPosition: queued,
		StagePlan:      stagePlan,
	})
}

func parsePriority(raw string) (queue.Priority, error) {
	switch raw {
	case "", "normal":
		return queue.PriorityNormal, nil
	case "high":
		return queue.PriorityHigh, nil
	case "low":
		return queue.PriorityLow, nil
	default:
		return 0, apperrors.Validation("priority", "must be one of high, normal, low")
	}
}

type progressResponse struct {
	Processing bool   `json:"processing"`
	Stage      string `json:"stage,omitempty"`
	Percent    int    `json:"percent,omitempty"`
}

// handleVideoProgress implements GET /videos/{video_id}/progress.
func (s *Server) handleVideoProgress(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	videoID := chi.URLParam(r, "video_id")
	if err := validateVideoID(videoID); err != nil {
		respondErr(w, r, start, err)
		return
	}

	stage, ok := s.deps.Processor.GetProgress(videoID)
	if !ok {
		respondOK(w, r, start, progressResponse{Processing: false})
		return
	}

	respondOK(w, r, start, progressResponse{
		Processing: true,
		Stage:      string(stage),
		Percent:    percentForStage(stage),
	})
}

func percentForStage(stage processor.Stage) int {
	for _, entry := range stagePlan {
		if entry.Stage == string(stage) {
			return entry.Percent
		}
	}
	return 0
}

// handleVideoStatus implements GET /videos/{video_id}/status: the
// data-completeness report from the persistence service.
func (s *Server) handleVideoStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	videoID := chi.URLParam(r, "video_id")
	if err := validateVideoID(videoID); err != nil {
		respondErr(w, r, start, err)
		return
	}

	report, err := s.deps.Persistence.VerifyVideoDataCompleteness(r.Context(), videoID)
	if err != nil {
		respondErr(w, r, start, err)
		return
	}
	respondOK(w, r, start, report)
}
