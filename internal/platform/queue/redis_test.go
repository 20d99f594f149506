package queue

import (
	"context"
	"encoding/json"
	"smartai/internal/domain/model"
	"smartai/internal/platform/telemetry"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gotest.tools/v3/assert"
)

const testChannel = "grading_job_events"

func newTestPublisher(t *testing.T) (*JobEventPublisher, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewJobEventPublisher(rdb, testChannel, 24*time.Hour, telemetry.Discard()), mr, rdb
}

func event(seq int, status model.JobStatus) model.JobEvent {
	return model.JobEvent{JobID: "job-1", Seq: seq, JobStatus: status, Graded: seq, At: time.Now().UTC()}
}

func TestPublishStoresLatestEventWithTTL(t *testing.T) {
	p, mr, _ := newTestPublisher(t)
	ctx := context.Background()

	assert.NilError(t, p.Publish(ctx, event(1, model.JobStatusRunning)))
	ev, err := p.LatestEvent(ctx, "job-1")
	assert.NilError(t, err)
	assert.Equal(t, ev.Seq, 1)
	assert.Equal(t, ev.JobStatus, model.JobStatusRunning)
	assert.Equal(t, mr.TTL(StatusKey("job-1")), 24*time.Hour)
}

func TestPublishNeverMovesStatusBackwards(t *testing.T) {
	p, _, rdb := newTestPublisher(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, testChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	assert.NilError(t, err)
	msgs := sub.Channel()

	assert.NilError(t, p.Publish(ctx, event(2, model.JobStatusCompleted)))
	assert.NilError(t, p.Publish(ctx, event(1, model.JobStatusRunning)))

	ev, err := p.LatestEvent(ctx, "job-1")
	assert.NilError(t, err)
	assert.Equal(t, ev.Seq, 2)
	assert.Equal(t, ev.JobStatus, model.JobStatusCompleted)

	assert.NilError(t, p.Publish(ctx, event(3, model.JobStatusCompleted)))

	var seqs []int
	for len(seqs) < 2 {
		select {
		case m := <-msgs:
			var got model.JobEvent
			assert.NilError(t, json.Unmarshal([]byte(m.Payload), &got))
			seqs = append(seqs, got.Seq)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", seqs)
		}
	}
	assert.DeepEqual(t, seqs, []int{2, 3})
}

func TestLatestEventMissingJob(t *testing.T) {
	p, _, _ := newTestPublisher(t)
	_, err := p.LatestEvent(context.Background(), "nope")
	assert.ErrorIs(t, err, redis.Nil)
}
