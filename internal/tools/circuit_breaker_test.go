// SPDX-License-Identifier: MIT

package tools

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (f *fakeClock) Now() time.Time { return f.now }
func (f *fakeClock) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("detect_objects", 2, time.Minute)

	boom := errors.New("boom")
	require.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	require.Equal(t, "closed", cb.State())

	require.ErrorIs(t, cb.Call(func() error { return boom }), boom)
	require.Equal(t, "open", cb.State())

	err := cb.Call(func() error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenRequiresTwoConsecutiveSuccesses(t *testing.T) {
	fc := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("caption_frames", 1, time.Second, WithClock(fc))

	require.Error(t, cb.Call(func() error { return errors.New("x") }))
	require.Equal(t, "open", cb.State())

	fc.advance(2 * time.Second)
	require.NoError(t, cb.Call(func() error { return nil }))
	require.Equal(t, "half-open", cb.State(), "a single half-open success should not close the breaker")

	require.NoError(t, cb.Call(func() error { return nil }))
	require.Equal(t, "closed", cb.State(), "two consecutive half-open successes close the breaker")
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	fc := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("caption_frames", 1, time.Second, WithClock(fc))

	require.Error(t, cb.Call(func() error { return errors.New("x") }))
	fc.advance(2 * time.Second)
	require.NoError(t, cb.Call(func() error { return nil }))
	require.Equal(t, "half-open", cb.State())

	require.Error(t, cb.Call(func() error { return errors.New("y") }))
	require.Equal(t, "open", cb.State())
}

func TestCircuitBreaker_RetryAfter(t *testing.T) {
	fc := &fakeClock{now: time.Now()}
	cb := NewCircuitBreaker("detect_objects", 1, 30*time.Second, WithClock(fc))

	require.Equal(t, time.Duration(0), cb.RetryAfter(), "a closed breaker has no retry_after")

	require.Error(t, cb.Call(func() error { return errors.New("x") }))
	require.Equal(t, "open", cb.State())

	fc.advance(10 * time.Second)
	require.Equal(t, 20*time.Second, cb.RetryAfter())

	fc.advance(25 * time.Second)
	require.Equal(t, time.Duration(0), cb.RetryAfter(), "retry_after never goes negative once the window has elapsed")
}

func TestBreakerSet_IsolatesPerTool(t *testing.T) {
	set := NewBreakerSet(1, time.Minute)

	a := set.For("extract_frames")
	b := set.For("transcribe_audio")
	require.NotSame(t, a, b)

	require.Error(t, a.Call(func() error { return errors.New("x") }))
	require.Equal(t, "open", a.State())
	require.Equal(t, "closed", b.State(), "a separate tool's breaker must stay closed")

	require.Same(t, a, set.For("extract_frames"), "same tool name reuses the breaker")
}
