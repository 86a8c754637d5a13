// SPDX-License-Identifier: MIT

package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleCacheStats implements GET /cache/stats: per-tier hit/miss counts.
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondOK(w, r, start, s.deps.Cache.Stats())
}

// handleCacheClear implements DELETE /cache: drops every entry across
// every tier. Cache.InvalidatePattern matches ':'-delimited segments
// exactly, so every known key shape ("tool:<hash>", "video:<id>:<hash>")
// is cleared explicitly rather than relying on a single "match all".
func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.deps.Cache.InvalidatePattern("*:*")
	s.deps.Cache.InvalidatePattern("*:*:*")
	respondOK(w, r, start, map[string]string{"status": "cleared"})
}

// handleCacheClearVideo implements DELETE /cache/videos/{video_id}:
// invalidates every cache entry namespaced to one video.
func (s *Server) handleCacheClearVideo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	videoID := chi.URLParam(r, "video_id")
	if err := validateVideoID(videoID); err != nil {
		respondErr(w, r, start, err)
		return
	}
	s.deps.Cache.InvalidatePattern(fmt.Sprintf("video:%s:*", videoID))
	respondOK(w, r, start, map[string]string{"status": "cleared", "video_id": videoID})
}
