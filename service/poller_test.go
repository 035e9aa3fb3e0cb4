package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_RunsJobs(t *testing.T) {
	p := NewPoller(nil)

	var runs atomic.Int32
	require.NoError(t, p.Every("count", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("ignored")
	}))
	assert.Equal(t, 1, p.Jobs())

	p.Start(context.Background())
	defer p.Stop()

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2
	}, 4*time.Second, 50*time.Millisecond)
}

func TestPoller_ReplaceAndRemove(t *testing.T) {
	p := NewPoller(nil)
	noop := func(ctx context.Context) error { return nil }

	require.NoError(t, p.Every("a", time.Minute, noop))
	require.NoError(t, p.Every("a", time.Minute, noop))
	require.NoError(t, p.Every("b", time.Minute, noop))
	assert.Equal(t, 2, p.Jobs())

	p.Remove("a")
	p.Remove("missing")
	assert.Equal(t, 1, p.Jobs())

	assert.Error(t, p.Every("c", 0, noop))
}

func TestPoller_StopCancelsJobs(t *testing.T) {
	p := NewPoller(nil)

	var first atomic.Bool
	started := make(chan struct{})
	cancelled := make(chan struct{})
	require.NoError(t, p.Every("slow", time.Second, func(ctx context.Context) error {
		if !first.CompareAndSwap(false, true) {
			return nil
		}
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}))

	p.Start(context.Background())

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job did not start")
	}

	p.Stop()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job was not cancelled")
	}
}
