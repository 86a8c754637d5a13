// SPDX-License-Identifier: MIT

package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_AddJobReturnsExistingForActiveVideoID(t *testing.T) {
	q := New(DefaultConfig(), func(ctx context.Context, videoID, videoPath string) {
		time.Sleep(50 * time.Millisecond)
	})

	j1 := q.AddJob("vid-1", "/a.mp4", PriorityNormal)
	j2 := q.AddJob("vid-1", "/a.mp4", PriorityHigh)
	require.Same(t, j1, j2, "re-adding an already-queued video_id must return the existing job")
}

func TestQueue_ProcessesJobsAndRecordsHistory(t *testing.T) {
	var mu sync.Mutex
	var processed []string

	q := New(Config{Workers: 2, CompletedCapacity: 10}, func(ctx context.Context, videoID, videoPath string) {
		mu.Lock()
		processed = append(processed, videoID)
		mu.Unlock()
	})
	q.StartWorkers()

	q.AddJob("vid-1", "/a.mp4", PriorityNormal)
	q.AddJob("vid-2", "/b.mp4", PriorityHigh)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(processed) == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		_, _, completed := q.Snapshot()
		return len(completed) == 2
	}, 2*time.Second, 10*time.Millisecond)

	q.Shutdown(time.Second)
}

func TestQueue_HighPriorityDispatchesBeforeLow(t *testing.T) {
	var mu sync.Mutex
	var order []string
	release := make(chan struct{})

	q := New(Config{Workers: 1, CompletedCapacity: 10}, func(ctx context.Context, videoID, videoPath string) {
		mu.Lock()
		order = append(order, videoID)
		mu.Unlock()
		<-release
	})

	// Block the single worker on the first job while the rest queue up.
	q.AddJob("blocker", "/blocker.mp4", PriorityNormal)
	q.StartWorkers()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	}, time.Second, 5*time.Millisecond)

	q.AddJob("low-1", "/low.mp4", PriorityLow)
	q.AddJob("high-1", "/high.mp4", PriorityHigh)
	close(release)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"blocker", "high-1", "low-1"}, order)

	q.Shutdown(time.Second)
}

func TestQueue_ShutdownWaitsForInFlightJobs(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})

	q := New(Config{Workers: 1, CompletedCapacity: 10}, func(ctx context.Context, videoID, videoPath string) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		close(finished)
	})
	q.StartWorkers()
	q.AddJob("vid-1", "/a.mp4", PriorityNormal)

	<-started
	q.Shutdown(2 * time.Second)

	select {
	case <-finished:
	default:
		t.Fatal("shutdown returned before the in-flight job finished")
	}
}
