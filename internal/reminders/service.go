package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/models"
)

// DefaultFilter applies when an event's settings select nobody.
var DefaultFilter = models.RecipientFilter{Accepted: true, Tentative: true, NoResponse: true}

// Store persists reminder jobs.
type Store interface {
	Create(ctx context.Context, j *models.ReminderJob) error
	ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.ReminderJob, error)
	DeleteUnsent(ctx context.Context, eventID uuid.UUID) (int64, error)
}

// Service creates and supersedes an event's reminder jobs.
type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a reminder scheduling service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// Plan returns the jobs an event should have, skipping those already in the past.
func (s *Service) Plan(ev *models.Event) []models.ReminderJob {
	filter := ev.Settings.Filter
	if !filter.Any() {
		filter = DefaultFilter
	}
	now := s.now()
	var jobs []models.ReminderJob
	add := func(typ models.ReminderType, offset time.Duration) {
		at := ev.StartsAt.Add(-offset)
		if !at.After(now) {
			return
		}
		jobs = append(jobs, models.ReminderJob{EventID: ev.ID, Type: typ, FireAt: at, Filter: filter})
	}
	add(models.ReminderFirst, ev.Settings.FirstOffset())
	if !ev.Settings.DisableSecondReminder {
		add(models.ReminderSecond, ev.Settings.SecondOffset())
	}
	return jobs
}

// EnsureScheduled creates any planned reminder type the event does not have yet.
func (s *Service) EnsureScheduled(ctx context.Context, ev *models.Event) error {
	existing, err := s.store.ListForEvent(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}
	have := make(map[models.ReminderType]bool, len(existing))
	for _, j := range existing {
		have[j.Type] = true
	}
	for _, j := range s.Plan(ev) {
		if have[j.Type] {
			continue
		}
		if err := s.store.Create(ctx, &j); err != nil {
			return fmt.Errorf("create %s reminder: %w", j.Type, err)
		}
		s.logger.Info("reminder scheduled",
			zap.String("event_id", ev.ID.String()), zap.String("type", string(j.Type)), zap.Time("fire_at", j.FireAt))
	}
	return nil
}

// Reschedule supersedes the event's pending jobs: they are deleted and fresh ones created
// from the current start time. Jobs already sent are left alone.
func (s *Service) Reschedule(ctx context.Context, ev *models.Event) error {
	n, err := s.store.DeleteUnsent(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("delete pending reminders: %w", err)
	}
	planned := s.Plan(ev)
	for i := range planned {
		if err := s.store.Create(ctx, &planned[i]); err != nil {
			return fmt.Errorf("create %s reminder: %w", planned[i].Type, err)
		}
	}
	s.logger.Info("reminders rescheduled",
		zap.String("event_id", ev.ID.String()), zap.Int64("superseded", n), zap.Int("created", len(planned)))
	return nil
}
