// SPDX-License-Identifier: MIT

// Package queue implements the bounded-concurrency priority dispatcher
// over video processing Jobs: three priority lanes drained by a single
// dispatcher goroutine, a fixed worker pool, an active-jobs map keyed
// by video_id, and a bounded completed-job history ring.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/videoforge/insights/internal/log"
)

var (
	queueSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "videoinsights_queue_size",
		Help: "Current number of jobs waiting in the priority queue",
	}, []string{"priority"})

	queueWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "videoinsights_queue_wait_seconds",
		Help:    "Time a job spent waiting in queue before a worker picked it up",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"priority"})
)

// Priority orders Jobs for dispatch: lower numeric value dispatches
// first. HIGH jobs jump the queue but never preempt an in-flight job.
type Priority int

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Status is a Job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Job is a unit of work: one progressive-processing run for one video.
// It is mutated only by the worker that owns it.
type Job struct {
	VideoID     string
	VideoPath   string
	Priority    Priority
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Status      Status
	Err         error
}

// Processor runs the progressive processing pipeline for one job. It is
// injected so the queue has no compile-time dependency on the
// processor package, keeping worker scheduling independently testable.
type Processor func(ctx context.Context, videoID, videoPath string)

// Config tunes worker count and completed-history retention.
type Config struct {
	Workers           int
	CompletedCapacity int
}

// DefaultConfig matches spec.md §4.7's typical values.
func DefaultConfig() Config {
	return Config{Workers: 2, CompletedCapacity: 100}
}

// Queue is the bounded-concurrency priority dispatcher over Jobs.
type Queue struct {
	cfg       Config
	processor Processor

	mu      sync.Mutex
	lanes   [3]chan *Job // indexed by Priority-1
	active  map[string]*Job
	history []*Job // ring buffer, capacity cfg.CompletedCapacity
	head    int

	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	shutdownAt time.Time
}

// New builds a Queue. Each priority lane is a channel buffered to 4096
// jobs; AddJob blocks while its lane is full.
func New(cfg Config, processor Processor) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:       cfg,
		processor: processor,
		active:    make(map[string]*Job),
		history:   make([]*Job, cfg.CompletedCapacity),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := range q.lanes {
		q.lanes[i] = make(chan *Job, 4096)
	}
	return q
}

// AddJob inserts a job respecting priority ordering, or returns the
// existing Job if video_id is already active or queued.
func (q *Queue) AddJob(videoID, videoPath string, priority Priority) *Job {
	q.mu.Lock()
	if existing, ok := q.active[videoID]; ok {
		q.mu.Unlock()
		return existing
	}
	job := &Job{VideoID: videoID, VideoPath: videoPath, Priority: priority, CreatedAt: time.Now(), Status: StatusQueued}
	q.active[videoID] = job
	q.mu.Unlock()

	q.lanes[priority-1] <- job
	queueSize.WithLabelValues(priority.String()).Inc()
	return job
}

// Active returns the in-flight or queued job for videoID, if any.
func (q *Queue) Active(videoID string) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.active[videoID]
	return j, ok
}

// StartWorkers spawns the single priority-aware dispatcher goroutine,
// which runs each job in its own goroutine and keeps at most cfg.Workers
// of them running at once.
func (q *Queue) StartWorkers() {
	q.wg.Add(1)
	go q.dispatch()
}

// dispatch pulls from the highest-priority non-empty lane first,
// mirroring the teacher's nested-select dispatch: highest priority
// checked first via select-with-default fallthrough to the next lane.
func (q *Queue) dispatch() {
	defer q.wg.Done()
	workerSem := make(chan struct{}, q.cfg.Workers)

	for {
		// Acquire a worker slot before pulling a job, so a job is never
		// removed from its lane until a worker is actually free to run
		// it — otherwise a lower-priority job pulled while all workers
		// are busy would strand ahead of a higher-priority job added
		// moments later.
		select {
		case workerSem <- struct{}{}:
		case <-q.ctx.Done():
			return
		}

		var job *Job
		select {
		case job = <-q.lanes[PriorityHigh-1]:
		case <-q.ctx.Done():
			<-workerSem
			return
		default:
			select {
			case job = <-q.lanes[PriorityHigh-1]:
			case job = <-q.lanes[PriorityNormal-1]:
			case <-q.ctx.Done():
				<-workerSem
				return
			default:
				select {
				case job = <-q.lanes[PriorityHigh-1]:
				case job = <-q.lanes[PriorityNormal-1]:
				case job = <-q.lanes[PriorityLow-1]:
				case <-q.ctx.Done():
					<-workerSem
					return
				case <-time.After(50 * time.Millisecond):
					<-workerSem
					continue
				}
			}
		}

		queueSize.WithLabelValues(job.Priority.String()).Dec()
		queueWaitSeconds.WithLabelValues(job.Priority.String()).Observe(time.Since(job.CreatedAt).Seconds())

		q.wg.Add(1)
		go q.runJob(job, workerSem)
	}
}

func (q *Queue) runJob(job *Job, workerSem chan struct{}) {
	defer q.wg.Done()
	defer func() { <-workerSem }()

	job.StartedAt = time.Now()
	job.Status = StatusProcessing

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.WithComponent("queue").Error().Interface("panic", r).Str("video_id", job.VideoID).Msg("job panicked")
				job.Err = errRecovered(r)
			}
		}()
		q.processor(q.ctx, job.VideoID, job.VideoPath)
	}()

	job.CompletedAt = time.Now()
	if job.Err != nil {
		job.Status = StatusFailed
	} else {
		job.Status = StatusComplete
	}

	q.mu.Lock()
	delete(q.active, job.VideoID)
	q.history[q.head%len(q.history)] = job
	q.head++
	q.mu.Unlock()
}

// Shutdown signals workers to stop accepting new jobs and waits up to
// timeout for in-flight jobs to finish before cancelling stragglers.
func (q *Queue) Shutdown(timeout time.Duration) {
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.WithComponent("queue").Warn().Dur("timeout", timeout).Msg("shutdown timed out, stragglers cancelled by context")
	}
}

// Snapshot reports the queue's current counts and recent history, oldest
// completed job first, for the HTTP surface's /queue endpoints.
func (q *Queue) Snapshot() (active, queued int, completed []*Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	active = 0
	for _, j := range q.active {
		if j.Status == StatusProcessing {
			active++
		}
	}
	for _, lane := range q.lanes {
		queued += len(lane)
	}

	completed = make([]*Job, 0, len(q.history))
	// Start at the oldest slot so completed is in completion order.
	for i := range q.history {
		if j := q.history[(q.head+i)%len(q.history)]; j != nil {
			completed = append(completed, j)
		}
	}
	return active, queued, completed
}

func errRecovered(r any) error {
	return fmt.Errorf("job panicked: %v", r)
}
