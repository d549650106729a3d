package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFixedTimeAfter(t *testing.T) {
	anchor := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour
	assert.Equal(t, anchor, nextFixedTimeAfter(anchor, day, anchor.Add(-time.Hour)))
	assert.Equal(t, anchor.Add(day), nextFixedTimeAfter(anchor, day, anchor))
	assert.Equal(t, anchor.Add(3*day), nextFixedTimeAfter(anchor, day, anchor.Add(2*day+time.Minute)))
}

func TestAlignedNextTimes(t *testing.T) {
	s := NewAlignedScheduler(context.Background(), time.Hour, 10*time.Second)
	now := time.Date(2025, 1, 1, 10, 59, 0, 0, time.UTC)
	nextClose, wakeAt, untilClose, wait := s.nextTimes(now)
	assert.Equal(t, time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC), nextClose)
	assert.Equal(t, nextClose.Add(10*time.Second), wakeAt)
	assert.Equal(t, time.Minute, untilClose)
	assert.Equal(t, 70*time.Second, wait)
}

func TestAlignedSchedulerRunsAndStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	var n atomic.Int32
	s := NewAlignedScheduler(ctx, 20*time.Millisecond, 0)
	s.RunImmediately = true
	done := make(chan struct{})
	go func() {
		s.Start(func() { n.Add(1) })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit after ctx done")
	}
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}

func TestAlignedOnceSchedulerExitsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var n atomic.Int32
	s := NewAlignedOnceScheduler(ctx, time.Hour, 24*time.Hour, 0)
	s.RunImmediately = true
	done := make(chan struct{})
	go func() {
		s.Start(func() { n.Add(1) })
		close(done)
	}()
	require.Eventually(t, func() bool { return n.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit after cancel")
	}
	assert.Equal(t, int32(1), n.Load())
}

func TestSchedulerRunsJobsIndependently(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	var fast, failing, panicking atomic.Int32
	s := New(
		Job{Name: "fast", Interval: 20 * time.Millisecond, RunImmediately: true, Task: func(context.Context) error {
			fast.Add(1)
			return nil
		}},
		Job{Name: "failing", Interval: 20 * time.Millisecond, RunImmediately: true, Task: func(context.Context) error {
			failing.Add(1)
			return errors.New("upstream down")
		}},
		Job{Name: "panicking", Interval: time.Hour, AlignInterval: time.Hour, RunImmediately: true, Task: func(context.Context) error {
			panicking.Add(1)
			panic("boom")
		}},
	)
	require.NoError(t, s.Run(ctx))
	assert.GreaterOrEqual(t, fast.Load(), int32(2))
	assert.GreaterOrEqual(t, failing.Load(), int32(2))
	assert.Equal(t, int32(1), panicking.Load())
}

func TestSchedulerRejectsInvalidJob(t *testing.T) {
	err := New(Job{Name: "bad"}).Run(context.Background())
	assert.Error(t, err)
}
