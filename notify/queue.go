package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueEvents is the Redis list key for pending notification jobs.
	QueueEvents = "notify:events"
	// QueueDLQ receives jobs that failed MaxRetries times.
	QueueDLQ = "notify:dlq"
	// MaxRetries is the number of attempts before a job is moved to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the pause after a failed job.
	RetryBackoff = 10 * time.Second
)

// Job is the queued envelope of one event. Recipients is empty on the first
// attempt and holds the undelivered addresses on retries.
type Job struct {
	Event      Event     `json:"event"`
	Recipients []string  `json:"recipients,omitempty"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"created_at"`
}

// RedisQueue is a Sink that pushes events onto a Redis list for the Worker.
type RedisQueue struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisQueue(client *redis.Client, logger *zap.Logger) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{client: client, logger: logger}
}

func (q *RedisQueue) Notify(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = newEventID()
	}
	return q.push(ctx, QueueEvents, &Job{Event: ev, CreatedAt: time.Now().UTC()})
}

func (q *RedisQueue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued notification", zap.String("event_id", job.Event.ID), zap.String("kind", string(job.Event.Kind)), zap.String("queue", key))
	return nil
}

// Dequeue waits up to wait for a job. It returns nil, nil when none arrived or
// the payload was unreadable.
func (q *RedisQueue) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, wait, QueueEvents).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid notification payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues job with an incremented attempt, or moves it to the DLQ
// once MaxRetries is reached.
func (q *RedisQueue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("event_id", job.Event.ID))
			return err
		}
		q.logger.Warn("notification moved to DLQ", zap.String("event_id", job.Event.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	return q.push(ctx, QueueEvents, job)
}
