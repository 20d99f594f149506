package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"smartai/internal/domain/model"
	"smartai/internal/platform/config"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis opens and pings the Redis client used for job events.
func ConnectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", cfg.RedisAddr, err)
	}
	return rdb, nil
}

// JobEventPublisher fans grading progress out over Redis pub/sub and keeps
// the latest event per job under a key with a TTL.
type JobEventPublisher struct {
	rdb     *redis.Client
	channel string
	ttl     time.Duration
	logger  *slog.Logger
}

func NewJobEventPublisher(rdb *redis.Client, channel string, ttl time.Duration, logger *slog.Logger) *JobEventPublisher {
	return &JobEventPublisher{rdb: rdb, channel: channel, ttl: ttl, logger: logger}
}

func StatusKey(jobID string) string {
	return "grading_job:" + jobID + ":status"
}

func seqKey(jobID string) string {
	return "grading_job:" + jobID + ":seq"
}

// publishEvent stores and publishes an event only when its seq is above the
// one already stored for the job. KEYS: status, seq. ARGV: seq, payload,
// ttl in ms (0 keeps the keys), channel.
var publishEvent = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[2]) or '0')
local seq = tonumber(ARGV[1])
if seq <= cur then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[2])
  redis.call('SET', KEYS[2], ARGV[1])
end
redis.call('PUBLISH', ARGV[4], ARGV[2])
return 1
`)

func (p *JobEventPublisher) Publish(ctx context.Context, ev model.JobEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue.Publish: marshal event: %w", err)
	}

	stored, err := publishEvent.Run(ctx, p.rdb,
		[]string{StatusKey(ev.JobID), seqKey(ev.JobID)},
		ev.Seq, payload, p.ttl.Milliseconds(), p.channel,
	).Int()
	if err != nil {
		return fmt.Errorf("queue.Publish: job %s: %w", ev.JobID, err)
	}
	if stored == 0 {
		p.logger.Debug("stale job event skipped", "job_id", ev.JobID, "seq", ev.Seq)
		return nil
	}
	p.logger.Debug("job event published", "job_id", ev.JobID, "seq", ev.Seq, "job_status", ev.JobStatus)
	return nil
}

// LatestEvent reads the newest stored event for a job.
func (p *JobEventPublisher) LatestEvent(ctx context.Context, jobID string) (*model.JobEvent, error) {
	raw, err := p.rdb.Get(ctx, StatusKey(jobID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("queue.LatestEvent: job %s: %w", jobID, err)
	}
	var ev model.JobEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("queue.LatestEvent: job %s: %w", jobID, err)
	}
	return &ev, nil
}
