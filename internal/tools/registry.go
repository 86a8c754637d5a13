// SPDX-License-Identifier: MIT

package tools

import (
	"context"

	"github.com/videoforge/insights/internal/store"
)

// Tool is a named analysis capability with a JSON-schema-shaped
// parameter contract for introspection, and an execution function. A
// tool may read previously-extracted frames from the store (the built-in
// caption_frames does so on every call, passing its SELECT to
// Store.ExecuteQuery); that read is the only coupling from tools to the
// store.
type Tool struct {
	Name        string
	Description string
	ParamSchema map[string]any
	Execute     func(ctx context.Context, videoID string, params map[string]any, st *store.Store) (Result, error)
}

// Result is a tool's raw output: a slice of analysis records in the
// shape the validator expects for this tool's ContextType.
type Result struct {
	Records []map[string]any
}

// Registry is the named tool catalog.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name] = t
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, for the HTTP surface's tool
// listing endpoint.
func (r *Registry) List() []Tool {
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	return out
}
