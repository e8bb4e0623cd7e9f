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

type fakeRefresher struct {
	calls    atomic.Int32
	err      error
	deadline atomic.Bool
}

func (f *fakeRefresher) Refresh(ctx context.Context) ([]string, error) {
	f.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		f.deadline.Store(true)
	}
	return []string{"a.png"}, f.err
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	_, err := New("not a cron spec", &fakeRefresher{}, time.Minute)
	assert.Error(t, err)
}

func TestRunOnceRefreshesWithTimeout(t *testing.T) {
	r := &fakeRefresher{}
	s, err := New("*/30 * * * *", r, time.Minute)
	require.NoError(t, err)

	s.RunOnce()
	assert.Equal(t, int32(1), r.calls.Load())
	assert.True(t, r.deadline.Load())
}

func TestRunOnceSurvivesRefreshError(t *testing.T) {
	r := &fakeRefresher{err: errors.New("newsapi down")}
	s, err := New("*/30 * * * *", r, 0)
	require.NoError(t, err)

	assert.NotPanics(t, s.RunOnce)
	assert.False(t, r.deadline.Load())
}

func TestStartRunsWarmupAfterDelay(t *testing.T) {
	r := &fakeRefresher{}
	s, err := New("0 0 1 1 *", r, time.Second)
	require.NoError(t, err)
	s.StartupDelay = 10 * time.Millisecond

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestStopCancelsPendingWarmup(t *testing.T) {
	r := &fakeRefresher{}
	s, err := New("0 0 1 1 *", r, time.Second)
	require.NoError(t, err)
	s.StartupDelay = 50 * time.Millisecond

	s.Start()
	s.Stop()

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(0), r.calls.Load())
}
