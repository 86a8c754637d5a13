// SPDX-License-Identifier: MIT

package httpapi

import (
	"net/http"
	"time"
)

type indexResponse struct {
	Service         string `json:"service"`
	Version         string `json:"version"`
	RegisteredTools int    `json:"registered_tools"`
}

// handleIndex implements GET /.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondOK(w, r, start, indexResponse{
		Service:         "videoinsights",
		Version:         Version,
		RegisteredTools: len(s.deps.Registry.List()),
	})
}
