package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Worker drains the Redis queue and delivers email for each event.
type Worker struct {
	queue     *RedisQueue
	deliverer *Deliverer
	logger    *zap.Logger
	wait      time.Duration
	backoff   time.Duration
}

func NewWorker(q *RedisQueue, d *Deliverer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: q, deliverer: d, logger: logger, wait: 5 * time.Second, backoff: RetryBackoff}
}

// Process delivers one job. On failure the job keeps only the recipients that
// still need the message.
func (w *Worker) Process(ctx context.Context, job *Job) error {
	failed, err := w.deliverer.Deliver(ctx, job.Event, job.Recipients)
	if err != nil {
		if len(failed) > 0 {
			job.Recipients = failed
		}
		return err
	}
	return nil
}

// Run processes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			w.logger.Info("notification worker stopping")
			return
		}

		job, err := w.queue.Dequeue(ctx, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Warn("dequeue error", zap.Error(err))
			w.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		w.logger.Debug("processing notification", zap.String("event_id", job.Event.ID), zap.String("kind", string(job.Event.Kind)))
		if err := w.Process(ctx, job); err != nil {
			w.logger.Error("notification job failed", zap.String("event_id", job.Event.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := w.queue.Retry(ctx, job); reErr != nil {
				w.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			w.sleep(ctx)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	if w.backoff <= 0 {
		return
	}
	t := time.NewTimer(w.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
