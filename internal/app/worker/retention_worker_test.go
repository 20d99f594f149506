package worker

import (
	"context"
	"smartai/internal/platform/telemetry"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"
)

type fakeEvicter struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (f *fakeEvicter) Evict(maxAge time.Duration) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, maxAge)
	return []string{"old"}
}

func (f *fakeEvicter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestRetentionWorkerSweepsPeriodically(t *testing.T) {
	ev := &fakeEvicter{}
	w := NewRetentionWorker(ev, time.Hour, 5*time.Millisecond, telemetry.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if ev.count() >= 2 {
			return poll.Success()
		}
		return poll.Continue("%d sweeps so far", ev.count())
	}, poll.WithTimeout(2*time.Second), poll.WithDelay(5*time.Millisecond))

	cancel()
	<-done
	assert.Equal(t, ev.calls[0], time.Hour)
}

func TestRetentionWorkerDisabled(t *testing.T) {
	ev := &fakeEvicter{}
	w := NewRetentionWorker(ev, 0, time.Millisecond, telemetry.Discard())
	w.Start(context.Background()) // returns immediately
	assert.Equal(t, ev.count(), 0)
}

func TestSweepReturnsEvictedIDs(t *testing.T) {
	w := NewRetentionWorker(&fakeEvicter{}, time.Minute, 0, telemetry.Discard())
	assert.DeepEqual(t, w.Sweep(), []string{"old"})
}
