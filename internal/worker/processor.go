package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/dispatch"
	"github.com/squadron-ops/eventbot/internal/events"
	"github.com/squadron-ops/eventbot/internal/lock"
	"github.com/squadron-ops/eventbot/internal/models"
)

// DefaultInterval is the processor tick period.
const DefaultInterval = time.Minute

// Queue names used in TickReport errors.
const (
	QueueReminders    = "reminders"
	QueuePublications = "publications"
	QueueFinalize     = "finalize"
	QueueTransitions  = "transitions"
)

// ReminderStore reads and settles reminder jobs.
type ReminderStore interface {
	ListDue(ctx context.Context, now time.Time) ([]models.ReminderJob, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReminderJob, error)
	MarkSent(ctx context.Context, id uuid.UUID) (bool, error)
}

// EventStore reads the processor's other queues.
type EventStore interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	DuePublications(ctx context.Context, now time.Time) ([]models.ScheduledPublication, error)
	GetScheduledPublication(ctx context.Context, id uuid.UUID) (*models.ScheduledPublication, error)
	MarkPublicationDone(ctx context.Context, id uuid.UUID) (bool, error)
	DueTransitions(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to models.EventStatus) (bool, error)
	ListUnfinalized(ctx context.Context) ([]uuid.UUID, error)
}

// EventActions are the event operations the processor triggers.
type EventActions interface {
	Publish(ctx context.Context, eventID uuid.UUID) events.Result
	Finalize(ctx context.Context, eventID uuid.UUID) (bool, error)
}

// ItemError is one failed queue item.
type ItemError struct {
	Queue string
	ID    uuid.UUID
	Err   error
}

func (e ItemError) Error() string { return fmt.Sprintf("%s %s: %v", e.Queue, e.ID, e.Err) }

// TickReport summarizes one tick.
type TickReport struct {
	RemindersSent    int
	RemindersDropped int
	Published        int
	Finalized        int
	Transitioned     int
	// Busy counts items skipped because another instance held their lock.
	Busy   int
	Errors []ItemError
}

// Processor works the four time-driven queues. Every item runs under its job lock.
type Processor struct {
	reminders ReminderStore
	events    EventStore
	actions   EventActions
	sender    events.ReminderSender
	locker    lock.Locker
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewProcessor creates a processor. A non-positive interval uses DefaultInterval.
func NewProcessor(reminders ReminderStore, evs EventStore, actions EventActions, sender events.ReminderSender, locker lock.Locker, interval time.Duration, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Processor{
		reminders: reminders,
		events:    evs,
		actions:   actions,
		sender:    sender,
		locker:    locker,
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
}

// Run ticks until ctx is done.
func (p *Processor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("processor started", zap.Duration("interval", p.interval))
	for {
		p.logReport(p.Tick(ctx))
		select {
		case <-ctx.Done():
			p.logger.Info("processor stopping")
			return
		case <-ticker.C:
		}
	}
}

func (p *Processor) logReport(r TickReport) {
	if r.RemindersSent+r.RemindersDropped+r.Published+r.Finalized+r.Transitioned+r.Busy+len(r.Errors) == 0 {
		return
	}
	p.logger.Info("tick complete",
		zap.Int("reminders_sent", r.RemindersSent),
		zap.Int("reminders_dropped", r.RemindersDropped),
		zap.Int("published", r.Published),
		zap.Int("finalized", r.Finalized),
		zap.Int("transitioned", r.Transitioned),
		zap.Int("busy", r.Busy),
		zap.Int("errors", len(r.Errors)))
}

// Tick processes each queue once, sequentially. A failing item is recorded and the
// rest of its queue still runs.
func (p *Processor) Tick(ctx context.Context) TickReport {
	var r TickReport
	now := p.now()

	if jobs, err := p.reminders.ListDue(ctx, now); err != nil {
		r.fail(QueueReminders, uuid.Nil, fmt.Errorf("list due: %w", err))
	} else {
		for _, job := range jobs {
			p.item(ctx, &r, QueueReminders, job.ID, func() error { return p.reminder(ctx, &r, job.ID) })
		}
	}

	if due, err := p.events.DuePublications(ctx, now); err != nil {
		r.fail(QueuePublications, uuid.Nil, fmt.Errorf("list due: %w", err))
	} else {
		for _, sp := range due {
			p.item(ctx, &r, QueuePublications, sp.ID, func() error { return p.publication(ctx, &r, sp.ID) })
		}
	}

	if ids, err := p.events.ListUnfinalized(ctx); err != nil {
		r.fail(QueueFinalize, uuid.Nil, fmt.Errorf("list unfinalized: %w", err))
	} else {
		for _, id := range ids {
			p.item(ctx, &r, QueueFinalize, id, func() error { return p.finalize(ctx, &r, id) })
		}
	}

	if ids, err := p.events.DueTransitions(ctx, now); err != nil {
		r.fail(QueueTransitions, uuid.Nil, fmt.Errorf("list transitions: %w", err))
	} else {
		for _, id := range ids {
			p.item(ctx, &r, QueueTransitions, id, func() error { return p.transition(ctx, &r, id, now) })
		}
	}
	return r
}

func (r *TickReport) fail(queue string, id uuid.UUID, err error) {
	r.Errors = append(r.Errors, ItemError{Queue: queue, ID: id, Err: err})
}

// item runs fn under the lock for id. The lock is always released, also on panic.
func (p *Processor) item(ctx context.Context, r *TickReport, queue string, id uuid.UUID, fn func() error) {
	if ctx.Err() != nil {
		return
	}
	ok, err := p.locker.TryAcquire(ctx, id)
	if err != nil {
		r.fail(queue, id, fmt.Errorf("acquire lock: %w", err))
		p.logger.Warn("lock acquire failed", zap.String("queue", queue), zap.String("id", id.String()), zap.Error(err))
		return
	}
	if !ok {
		r.Busy++
		return
	}
	defer func() {
		if err := p.locker.Release(context.WithoutCancel(ctx), id); err != nil {
			p.logger.Error("lock release failed", zap.String("queue", queue), zap.String("id", id.String()), zap.Error(err))
		}
	}()
	defer func() {
		if v := recover(); v != nil {
			r.fail(queue, id, fmt.Errorf("panic: %v", v))
			p.logger.Error("queue item panicked", zap.String("queue", queue), zap.String("id", id.String()), zap.Any("panic", v))
		}
	}()
	if err := fn(); err != nil {
		r.fail(queue, id, err)
		p.logger.Error("queue item failed", zap.String("queue", queue), zap.String("id", id.String()), zap.Error(err))
	}
}

func (p *Processor) reminder(ctx context.Context, r *TickReport, jobID uuid.UUID) error {
	// Re-read under the lock: another instance may have sent it since ListDue.
	job, err := p.reminders.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("reload job: %w", err)
	}
	if job == nil || job.Sent {
		return nil
	}
	log := p.logger.With(zap.String("job_id", job.ID.String()), zap.String("event_id", job.EventID.String()))

	ev, err := p.events.Get(ctx, job.EventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if ev == nil || ev.Status == models.EventStatusConcluded {
		log.Warn("discarding reminder for missing or concluded event")
		return p.discard(ctx, r, job)
	}

	out, err := p.sender.SendReminder(ctx, ev, dispatch.ReminderRequest{Kind: string(job.Type), Filter: job.Filter})
	if errors.Is(err, dispatch.ErrNoPublications) {
		log.Warn("discarding reminder, event has no valid publications")
		return p.discard(ctx, r, job)
	}
	if err != nil {
		return err
	}
	if out.Retryable() {
		return fmt.Errorf("nothing delivered, retrying next tick: %w", out.Err())
	}
	if err := out.Err(); err != nil {
		log.Warn("reminder partially delivered", zap.Int("sent", out.Sent()), zap.Error(err))
	}
	marked, err := p.reminders.MarkSent(ctx, job.ID)
	if err != nil {
		log.Error("reminder sent but not marked", zap.Error(err))
		return fmt.Errorf("mark sent: %w", err)
	}
	if !marked {
		log.Warn("reminder was already marked sent")
	}
	r.RemindersSent++
	return nil
}

func (p *Processor) discard(ctx context.Context, r *TickReport, job *models.ReminderJob) error {
	if _, err := p.reminders.MarkSent(ctx, job.ID); err != nil {
		return fmt.Errorf("mark discarded: %w", err)
	}
	r.RemindersDropped++
	return nil
}

func (p *Processor) publication(ctx context.Context, r *TickReport, id uuid.UUID) error {
	sp, err := p.events.GetScheduledPublication(ctx, id)
	if err != nil {
		return fmt.Errorf("reload scheduled publication: %w", err)
	}
	if sp == nil || sp.DoneAt != nil {
		return nil
	}
	res := p.actions.Publish(ctx, sp.EventID)
	var failure error
	if !res.Success && !res.NotFound {
		failure = fmt.Errorf("publish: %s", res.Error)
		if res.Retryable {
			// Channels already published are skipped on the next attempt.
			return failure
		}
	}
	if _, err := p.events.MarkPublicationDone(ctx, id); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	if res.Success {
		r.Published++
	}
	return failure
}

func (p *Processor) finalize(ctx context.Context, r *TickReport, eventID uuid.UUID) error {
	done, err := p.actions.Finalize(ctx, eventID)
	if err != nil {
		return err
	}
	if done {
		r.Finalized++
	}
	return nil
}

// target returns the status the clock implies for ev.
func target(ev *models.Event, now time.Time) models.EventStatus {
	switch {
	case !now.Before(ev.EffectiveEnd()):
		return models.EventStatusConcluded
	case !now.Before(ev.StartsAt):
		return models.EventStatusActive
	default:
		return models.EventStatusScheduled
	}
}

func (p *Processor) transition(ctx context.Context, r *TickReport, eventID uuid.UUID, now time.Time) error {
	ev, err := p.events.Get(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
	}
	if ev == nil {
		return nil
	}
	to := target(ev, now)
	if to == ev.Status || ev.Status == models.EventStatusConcluded {
		return nil
	}
	moved, err := p.events.SetStatus(ctx, ev.ID, ev.Status, to)
	if err != nil {
		return fmt.Errorf("set status %s: %w", to, err)
	}
	if moved {
		r.Transitioned++
		p.logger.Info("event status changed", zap.String("event_id", ev.ID.String()),
			zap.String("from", string(ev.Status)), zap.String("to", string(to)))
	}
	return nil
}
