package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/attendance"
	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/pkg/queue"
)

// JobQueue is the queue surface the consumer uses.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) error
}

// PressHandler stores a press and refreshes the event messages.
type PressHandler interface {
	HandlePress(ctx context.Context, p chat.Press) (*attendance.Result, error)
}

// InteractionConsumer drains attendance presses from the queue into the reconciler.
type InteractionConsumer struct {
	queue   JobQueue
	presses PressHandler
	backoff time.Duration
	logger  *zap.Logger
}

// NewInteractionConsumer creates an interaction consumer.
func NewInteractionConsumer(q JobQueue, presses PressHandler, logger *zap.Logger) *InteractionConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InteractionConsumer{queue: q, presses: presses, backoff: queue.RetryBackoff, logger: logger}
}

// EnqueuePress returns a chat.PressSink that queues presses for a consumer.
func EnqueuePress(q *queue.Queue) chat.PressSink {
	return func(ctx context.Context, p chat.Press) error {
		_, err := q.Enqueue(ctx, queue.JobTypeAttendance, p)
		return err
	}
}

// permanent reports press failures that no retry can fix.
func permanent(err error) bool {
	return errors.Is(err, attendance.ErrUnknownMessage) ||
		errors.Is(err, attendance.ErrInvalidResponse) ||
		errors.Is(err, attendance.ErrEventClosed)
}

// Process executes one job. Permanent press rejections are logged and dropped.
func (c *InteractionConsumer) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAttendance {
		c.logger.Warn("dropping job of unknown type", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		return nil
	}
	var press chat.Press
	if err := json.Unmarshal(job.Payload, &press); err != nil {
		c.logger.Warn("dropping unreadable press", zap.String("job_id", job.ID), zap.Error(err))
		return nil
	}
	res, err := c.presses.HandlePress(ctx, press)
	if err != nil {
		if permanent(err) {
			c.logger.Info("press rejected", zap.String("message_id", press.MessageID), zap.String("user_id", press.UserID), zap.Error(err))
			return nil
		}
		return fmt.Errorf("handle press: %w", err)
	}
	c.logger.Debug("press recorded",
		zap.String("event_id", res.Record.EventID.String()),
		zap.String("user_id", press.UserID),
		zap.String("response", string(res.Record.Response)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (c *InteractionConsumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("interaction consumer stopping")
			return
		default:
		}

		job, err := c.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("dequeue error", zap.Error(err))
			c.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		if err := c.Process(ctx, job); err != nil {
			c.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := c.queue.Retry(context.WithoutCancel(ctx), job, err); reErr != nil {
				c.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			c.sleep(ctx)
		}
	}
}

func (c *InteractionConsumer) sleep(ctx context.Context) {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
