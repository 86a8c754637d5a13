// SPDX-License-Identifier: MIT

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/queue"
)

type queueStatusResponse struct {
	ActiveJobs        int  `json:"active_jobs"`
	QueuedJobs        int  `json:"queued_jobs"`
	CompletedJobs     int  `json:"completed_jobs"`
	Workers           int  `json:"workers"`
	ShutdownRequested bool `json:"shutdown_requested"`
}

// handleQueueStatus implements GET /queue/status.
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	active, queued, completed := s.deps.Queue.Snapshot()
	respondOK(w, r, start, queueStatusResponse{
		ActiveJobs:    active,
		QueuedJobs:    queued,
		CompletedJobs: len(completed),
		Workers:       s.queueWorkers,
	})
}

type jobResponse struct {
	VideoID   string `json:"video_id"`
	VideoPath string `json:"video_path"`
	Priority  string `json:"priority"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Error     string `json:"error,omitempty"`
}

// handleQueueJob implements GET /queue/job/{video_id}: the active job, or
// the most recent completed job with that video_id, or a 404.
func (s *Server) handleQueueJob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	videoID := chi.URLParam(r, "video_id")
	if err := validateVideoID(videoID); err != nil {
		respondErr(w, r, start, err)
		return
	}

	if job, ok := s.deps.Queue.Active(videoID); ok {
		respondOK(w, r, start, toJobResponse(job))
		return
	}

	_, _, completed := s.deps.Queue.Snapshot()
	for i := len(completed) - 1; i >= 0; i-- {
		if completed[i].VideoID == videoID {
			respondOK(w, r, start, toJobResponse(completed[i]))
			return
		}
	}

	respondErr(w, r, start, apperrors.New(apperrors.NotFound, "no job found for video").WithDetails(map[string]any{"job_id": videoID}))
}

func toJobResponse(job *queue.Job) jobResponse {
	resp := jobResponse{
		VideoID:   job.VideoID,
		VideoPath: job.VideoPath,
		Priority:  job.Priority.String(),
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if job.Err != nil {
		resp.Error = job.Err.Error()
	}
	return resp
}
