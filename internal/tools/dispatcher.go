// SPDX-License-Identifier: MIT

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/videoforge/insights/internal/apperrors"
	"github.com/videoforge/insights/internal/cache"
	"github.com/videoforge/insights/internal/log"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/telemetry"
)

var dispatcherTracer = telemetry.Tracer("videoinsights/tools")

// Dispatcher wraps every tool invocation with cache lookup, a per-tool
// circuit breaker, a hard timeout, and a persistence write on success.
type Dispatcher struct {
	registry    *Registry
	breakers    *BreakerSet
	cache       *cache.Tiered // may be nil to disable caching
	persistence *persistence.Service
	store       *store.Store
	callTimeout time.Duration
}

// NewDispatcher builds a Dispatcher over the given registry, cache,
// persistence service and store, enforcing callTimeout per tool call.
func NewDispatcher(registry *Registry, breakers *BreakerSet, tc *cache.Tiered, svc *persistence.Service, st *store.Store, callTimeout time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, breakers: breakers, cache: tc, persistence: svc, store: st, callTimeout: callTimeout}
}

// Invocation is the outcome of a single dispatched tool call.
type Invocation struct {
	ToolName string
	Cached   bool
	Counts   persistence.CountsByKind
	Err      error
}

// cacheKeyInput canonicalizes (tool_name, video_id, params) for hashing;
// json.Marshal on map[string]any sorts keys, giving a stable encoding.
func cacheKeyInput(toolName, videoID string, params map[string]any) (string, error) {
	encoded, err := json.Marshal(params)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ValidationFailure, "canonicalize tool params", err)
	}
	return fmt.Sprintf("%s|%s|%s", toolName, videoID, encoded), nil
}

// Invoke runs a single tool per spec.md §4.5: cache probe, timeout-bound
// execution on miss, persistence write on success, and cache population.
func (d *Dispatcher) Invoke(ctx context.Context, toolName, videoID string, params map[string]any, lineage persistence.Lineage, idempotencyKey string) Invocation {
	ctx, span := dispatcherTracer.Start(ctx, "tools.Invoke")
	span.SetAttributes(telemetry.VideoAttributes(videoID, "", 0)...)
	defer span.End()

	tool, ok := d.registry.Get(toolName)
	if !ok {
		return Invocation{ToolName: toolName, Err: apperrors.New(apperrors.NotFound, fmt.Sprintf("unknown tool %q", toolName))}
	}

	keyInput, err := cacheKeyInput(toolName, videoID, params)
	if err != nil {
		return Invocation{ToolName: toolName, Err: err}
	}
	cacheKey := cache.Key("tool", keyInput)

	if d.cache != nil {
		if v, hit := d.cache.Get(cacheKey); hit {
			if counts, ok := v.(persistence.CountsByKind); ok {
				span.SetAttributes(telemetry.ToolAttributes(toolName, true, false)...)
				return Invocation{ToolName: toolName, Cached: true, Counts: counts}
			}
		}
	}

	breaker := d.breakers.For(toolName)
	var result Result
	callErr := breaker.Call(func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			r, err := tool.Execute(callCtx, videoID, params, d.store)
			result = r
			done <- err
		}()

		select {
		case err := <-done:
			return err
		case <-callCtx.Done():
			return apperrors.New(apperrors.ToolTimeout, fmt.Sprintf("tool %q exceeded its execution budget", toolName))
		}
	})
	if callErr != nil {
		breakerOpen := callErr == ErrCircuitOpen
		if breakerOpen {
			retryAfter := breaker.RetryAfter()
			callErr = apperrors.New(apperrors.BreakerOpen, fmt.Sprintf("circuit open for tool %q", toolName)).
				WithDetails(map[string]any{"tool_name": toolName, "retry_after": int(retryAfter.Round(time.Second).Seconds())})
		}
		span.SetAttributes(telemetry.ToolAttributes(toolName, false, breakerOpen)...)
		log.WithComponent("dispatcher").Error().Err(callErr).Str("tool_name", toolName).Str("video_id", videoID).Msg("tool invocation failed")
		return Invocation{ToolName: toolName, Err: callErr}
	}
	span.SetAttributes(telemetry.ToolAttributes(toolName, false, false)...)

	records := make([]map[string]any, len(result.Records))
	copy(records, result.Records)

	counts, err := d.persistence.StoreToolResults(ctx, videoID, toolName, records, lineage, idempotencyKey)
	if err != nil {
		return Invocation{ToolName: toolName, Err: err}
	}

	if d.cache != nil {
		d.cache.Set(cacheKey, counts, 0)
	}

	return Invocation{ToolName: toolName, Counts: counts}
}

// ProcessVideo fans the selected tools out concurrently, gathering a
// partial-success aggregate. Tools are independent of each other at this
// layer; ordering between them is unspecified.
func (d *Dispatcher) ProcessVideo(ctx context.Context, videoID string, toolNames []string, paramsByTool map[string]map[string]any, lineage persistence.Lineage) map[string]Invocation {
	results := make(map[string]Invocation, len(toolNames))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, name := range toolNames {
		name := name
		g.Go(func() error {
			inv := d.Invoke(gctx, name, videoID, paramsByTool[name], lineage, "")
			mu.Lock()
			results[name] = inv
			mu.Unlock()
			return nil // partial failures are captured in Invocation.Err, not propagated to errgroup
		})
	}
	_ = g.Wait()
	return results
}
