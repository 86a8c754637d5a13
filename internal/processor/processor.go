// SPDX-License-Identifier: MIT

// Package processor implements the progressive per-video processor:
// a three-stage state machine (EXTRACTING → CAPTIONING → ANALYZING)
// that owns processing_status mutation and emits progress events to
// registered subscribers.
package processor

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/videoforge/insights/internal/fsm"
	"github.com/videoforge/insights/internal/log"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/telemetry"
	"github.com/videoforge/insights/internal/tools"
)

var processorTracer = telemetry.Tracer("videoinsights/processor")

// Stage is one of the processor's FSM states.
type Stage string

const (
	StageExtracting Stage = "EXTRACTING"
	StageCaptioning Stage = "CAPTIONING"
	StageAnalyzing  Stage = "ANALYZING"
	StageComplete   Stage = "COMPLETE"
	StageError      Stage = "ERROR"
)

// Event drives the FSM from one stage to the next.
type Event string

const (
	eventExtracted  Event = "extracted"
	eventCaptioned  Event = "captioned"
	eventAnalyzed   Event = "analyzed"
	eventExtractErr Event = "extract_failed"
	eventCaptionErr Event = "caption_failed"
)

// stagePercent implements spec.md §4.6's monotonic 0→33→66→100 mapping.
var stagePercent = map[Stage]int{
	StageExtracting: 0,
	StageCaptioning: 33,
	StageAnalyzing:  66,
	StageComplete:   100,
	StageError:      100,
}

// ProgressEvent is delivered to every subscriber on each stage entry.
type ProgressEvent struct {
	VideoID string
	Stage   Stage
	Percent int
	Message string
	Counts  persistence.CountsByKind
}

// Processor drives a single video through its stages and fans progress
// events out to subscribers, matching adverant VideoAgent's
// register/notify pattern but over an in-process channel map rather
// than Redis pub/sub, since subscribers here are local HTTP long-poll
// readers, not other services.
type Processor struct {
	st         *store.Store
	dispatcher *tools.Dispatcher

	mu          sync.RWMutex
	subscribers map[string][]chan ProgressEvent
	active      map[string]Stage
}

// New builds a Processor over the given store and tool dispatcher.
func New(st *store.Store, dispatcher *tools.Dispatcher) *Processor {
	return &Processor{
		st:          st,
		dispatcher:  dispatcher,
		subscribers: make(map[string][]chan ProgressEvent),
		active:      make(map[string]Stage),
	}
}

// Subscribe registers a buffered channel that receives every progress
// event for videoID until the processor reaches a terminal stage, at
// which point the channel is closed and removed.
func (p *Processor) Subscribe(videoID string) <-chan ProgressEvent {
	ch := make(chan ProgressEvent, 8)
	p.mu.Lock()
	p.subscribers[videoID] = append(p.subscribers[videoID], ch)
	p.mu.Unlock()
	return ch
}

// GetProgress reports the current stage for an in-flight video, per
// spec.md §4.6's "no longer queryable after terminal state" rule.
func (p *Processor) GetProgress(videoID string) (Stage, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	stage, ok := p.active[videoID]
	return stage, ok
}

func (p *Processor) publish(videoID string, evt ProgressEvent) {
	p.mu.Lock()
	p.active[videoID] = evt.Stage
	subs := p.subscribers[videoID]
	terminal := evt.Stage == StageComplete || evt.Stage == StageError
	if terminal {
		delete(p.active, videoID)
		delete(p.subscribers, videoID)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default: // slow subscriber: drop rather than block the processor
		}
		if terminal {
			close(ch)
		}
	}
}

func (p *Processor) setStatus(ctx context.Context, videoID string, status store.ProcessingStatus) {
	if err := p.st.UpdateProcessingStatus(ctx, videoID, status); err != nil {
		log.WithComponent("processor").Error().Err(err).Str("video_id", videoID).Msg("failed to update processing status")
	}
}

// Run drives videoID through EXTRACTING → CAPTIONING → ANALYZING,
// emitting a progress event on entry to each stage, and returns once a
// terminal stage is reached. It does not write ContextRecords itself;
// tools do so via the persistence service.
func (p *Processor) Run(ctx context.Context, videoID string) {
	ctx, span := processorTracer.Start(ctx, "processor.Run")
	span.SetAttributes(telemetry.VideoAttributes(videoID, "", 0)...)
	defer span.End()

	machine, err := p.buildMachine(videoID)
	if err != nil {
		log.WithComponent("processor").Error().Err(err).Str("video_id", videoID).Msg("failed to build state machine")
		return
	}

	p.setStatus(ctx, videoID, store.StatusExtracting)
	span.AddEvent("stage", trace.WithAttributes(telemetry.StageAttributes(string(StageExtracting), stagePercent[StageExtracting])...))
	p.publish(videoID, ProgressEvent{VideoID: videoID, Stage: StageExtracting, Percent: stagePercent[StageExtracting], Message: "extracting frames"})

	extractInv := p.dispatcher.Invoke(ctx, "extract_frames", videoID, nil, persistence.Lineage{ToolName: "extract_frames"}, "")
	if extractInv.Err != nil {
		p.fail(ctx, machine, videoID, eventExtractErr, fmt.Sprintf("frame extraction failed: %v", extractInv.Err))
		return
	}
	if _, err := machine.Fire(ctx, eventExtracted); err != nil {
		p.fail(ctx, machine, videoID, eventExtractErr, err.Error())
		return
	}

	p.setStatus(ctx, videoID, store.StatusCaptioning)
	span.AddEvent("stage", trace.WithAttributes(telemetry.StageAttributes(string(StageCaptioning), stagePercent[StageCaptioning])...))
	p.publish(videoID, ProgressEvent{VideoID: videoID, Stage: StageCaptioning, Percent: stagePercent[StageCaptioning], Message: "captioning frames", Counts: extractInv.Counts})

	captionInv := p.dispatcher.Invoke(ctx, "caption_frames", videoID, nil, persistence.Lineage{ToolName: "caption_frames"}, "")
	if captionInv.Err != nil {
		p.fail(ctx, machine, videoID, eventCaptionErr, fmt.Sprintf("captioning failed: %v", captionInv.Err))
		return
	}
	if _, err := machine.Fire(ctx, eventCaptioned); err != nil {
		p.fail(ctx, machine, videoID, eventCaptionErr, err.Error())
		return
	}

	p.setStatus(ctx, videoID, store.StatusAnalyzing)
	span.AddEvent("stage", trace.WithAttributes(telemetry.StageAttributes(string(StageAnalyzing), stagePercent[StageAnalyzing])...))
	p.publish(videoID, ProgressEvent{VideoID: videoID, Stage: StageAnalyzing, Percent: stagePercent[StageAnalyzing], Message: "transcribing and detecting objects", Counts: captionInv.Counts})

	results := p.dispatcher.ProcessVideo(ctx, videoID, []string{"transcribe_audio", "detect_objects"}, nil, persistence.Lineage{})
	succeeded := 0
	merged := persistence.CountsByKind{}
	for name, inv := range results {
		if inv.Err != nil {
			log.WithComponent("processor").Warn().Err(inv.Err).Str("video_id", videoID).Str("tool_name", name).Msg("analyzing sub-task failed")
			continue
		}
		succeeded++
		for k, v := range inv.Counts {
			merged[k] += v
		}
	}

	if succeeded == 0 {
		p.fail(ctx, machine, videoID, eventCaptionErr, "both transcription and object detection failed")
		return
	}

	if _, err := machine.Fire(ctx, eventAnalyzed); err != nil {
		p.fail(ctx, machine, videoID, eventCaptionErr, err.Error())
		return
	}

	p.setStatus(ctx, videoID, store.StatusComplete)
	span.AddEvent("stage", trace.WithAttributes(telemetry.StageAttributes(string(StageComplete), stagePercent[StageComplete])...))
	p.publish(videoID, ProgressEvent{VideoID: videoID, Stage: StageComplete, Percent: stagePercent[StageComplete], Message: "analysis complete", Counts: merged})
}

func (p *Processor) fail(ctx context.Context, machine *fsm.Machine[Stage, Event], videoID string, event Event, message string) {
	_, _ = machine.Fire(ctx, event)
	p.setStatus(ctx, videoID, store.StatusError)
	trace.SpanFromContext(ctx).AddEvent("stage", trace.WithAttributes(telemetry.StageAttributes(string(StageError), stagePercent[StageError])...))
	p.publish(videoID, ProgressEvent{VideoID: videoID, Stage: StageError, Percent: stagePercent[StageError], Message: message})
}

func (p *Processor) buildMachine(videoID string) (*fsm.Machine[Stage, Event], error) {
	return fsm.New(StageExtracting, []fsm.Transition[Stage, Event]{
		{From: StageExtracting, Event: eventExtracted, To: StageCaptioning},
		{From: StageExtracting, Event: eventExtractErr, To: StageError},
		{From: StageCaptioning, Event: eventCaptioned, To: StageAnalyzing},
		{From: StageCaptioning, Event: eventCaptionErr, To: StageError},
		{From: StageAnalyzing, Event: eventAnalyzed, To: StageComplete},
		{From: StageAnalyzing, Event: eventCaptionErr, To: StageError},
	})
}
