// SPDX-License-Identifier: MIT

package httpapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/videoforge/insights/internal/api/middleware"
	"github.com/videoforge/insights/internal/cache"
	"github.com/videoforge/insights/internal/health"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/processor"
	"github.com/videoforge/insights/internal/queue"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/tools"
)

// Deps bundles every component the HTTP surface dispatches into. It is
// built once at startup (cmd/server/main.go) and held by Server for the
// life of the process — no package-level singletons.
type Deps struct {
	Store       *store.Store
	Registry    *tools.Registry
	Dispatcher  *tools.Dispatcher
	Processor   *processor.Processor
	Queue       *queue.Queue
	Persistence *persistence.Service
	Cache       *cache.Tiered
	Health      *health.Manager
	// QueueWorkers reports the worker pool size configured on Queue, for
	// the /queue/status endpoint; Queue itself does not expose it.
	QueueWorkers int
}

// Server holds the HTTP surface's dependencies and exposes Router to
// build a mountable http.Handler.
type Server struct {
	deps         Deps
	queueWorkers int
}

// NewServer builds a Server over deps.
func NewServer(deps Deps) *Server {
	return &Server{deps: deps, queueWorkers: deps.QueueWorkers}
}

// Router builds a chi router with the canonical middleware stack and
// every spec.md §6 endpoint registered.
func (s *Server) Router(mwCfg middleware.StackConfig) *chi.Mux {
	r := chi.NewRouter()
	middleware.ApplyStack(r, mwCfg)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.deps.Health.ServeHealth)

	r.Get("/tools", s.handleListTools)
	r.Post("/tools/{tool_name}/execute", s.handleExecuteTool)

	r.Post("/videos/{video_id}/process", s.handleProcessVideo)
	r.Post("/videos/{video_id}/process-progressive", s.handleProcessProgressive)
	r.Get("/videos/{video_id}/progress", s.handleVideoProgress)
	r.Get("/videos/{video_id}/status", s.handleVideoStatus)

	r.Get("/queue/status", s.handleQueueStatus)
	r.Get("/queue/job/{video_id}", s.handleQueueJob)

	r.Get("/cache/stats", s.handleCacheStats)
	r.Delete("/cache", s.handleCacheClear)
	r.Delete("/cache/videos/{video_id}", s.handleCacheClearVideo)

	return r
}
