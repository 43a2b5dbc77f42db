package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/attendance"
	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/dispatch"
	"github.com/squadron-ops/eventbot/internal/models"
	"github.com/squadron-ops/eventbot/internal/render"
)

// ErrNotFound is returned for an unknown event id.
var ErrNotFound = errors.New("event not found")

// Store is the persistence the service needs.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Update(ctx context.Context, ev *models.Event) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListPublications(ctx context.Context, eventID uuid.UUID) ([]models.Publication, error)
	InsertPublication(ctx context.Context, p *models.Publication) (bool, error)
	AddPublicationSquadrons(ctx context.Context, publicationID uuid.UUID, squadronIDs []uuid.UUID) error
	SchedulePublication(ctx context.Context, sp *models.ScheduledPublication) error
	MarkFinalized(ctx context.Context, id uuid.UUID) (bool, error)
}

// ReminderScheduler creates and supersedes reminder jobs.
type ReminderScheduler interface {
	EnsureScheduled(ctx context.Context, ev *models.Event) error
	Reschedule(ctx context.Context, ev *models.Event) error
}

// ReminderSender dispatches one reminder.
type ReminderSender interface {
	SendReminder(ctx context.Context, ev *models.Event, req dispatch.ReminderRequest) (*dispatch.Outcome, error)
}

// Invalidator drops cached copies of an event.
type Invalidator interface {
	Invalidate(ctx context.Context, eventID uuid.UUID)
}

// Archiver stores the final snapshot of a concluded event.
type Archiver interface {
	PutArchive(ctx context.Context, eventID string, v interface{}) (string, error)
}

// Result is what every user-facing operation reports back. Expected failures end up in
// Error, never as a panic or a returned error.
type Result struct {
	Success    bool      `json:"success"`
	EventID    uuid.UUID `json:"event_id"`
	MessageIDs []string  `json:"message_ids,omitempty"`
	ThreadIDs  []string  `json:"thread_ids,omitempty"`
	Error      string    `json:"error,omitempty"`
	// Retryable reports that at least one failure was transient; repeating the call may succeed.
	Retryable bool `json:"retryable,omitempty"`
	// NotFound reports that the event does not exist.
	NotFound bool `json:"-"`
}

func failed(id uuid.UUID, err error) Result {
	return Result{
		EventID:   id,
		Error:     err.Error(),
		Retryable: chat.IsTransient(err),
		NotFound:  errors.Is(err, ErrNotFound),
	}
}

// unavailable is failed for store errors, which are worth another attempt.
func unavailable(id uuid.UUID, err error) Result {
	res := failed(id, err)
	res.Retryable = true
	return res
}

// Archive is the JSON snapshot written when an event is finalized.
type Archive struct {
	Event       models.Event              `json:"event"`
	Summary     models.AttendanceSummary  `json:"summary"`
	Records     []models.AttendanceRecord `json:"records"`
	FinalizedAt time.Time                 `json:"finalized_at"`
}

// Service implements publish, edit, delete, manual reminders and finalize.
type Service struct {
	store      Store
	squadrons  dispatch.SquadronSource
	attendance dispatch.AttendanceSource
	reminders  ReminderScheduler
	sender     ReminderSender
	chat       chat.Client
	cache      Invalidator
	archive    Archiver
	logger     *zap.Logger
}

// NewService creates the event service.
func NewService(store Store, squadrons dispatch.SquadronSource, att dispatch.AttendanceSource, reminders ReminderScheduler, sender ReminderSender, client chat.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      store,
		squadrons:  squadrons,
		attendance: att,
		reminders:  reminders,
		sender:     sender,
		chat:       client,
		logger:     logger,
	}
}

// SetCache sets the optional event cache to invalidate on changes.
func (s *Service) SetCache(c Invalidator) { s.cache = c }

// SetArchiver sets the optional archive store used by Finalize.
func (s *Service) SetArchiver(a Archiver) { s.archive = a }

func (s *Service) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if ev == nil {
		return nil, ErrNotFound
	}
	return ev, nil
}

func (s *Service) summary(ctx context.Context, ev *models.Event) (models.AttendanceSummary, []models.AttendanceRecord, error) {
	records, err := s.attendance.ListForEvent(ctx, ev.ID, ev.MessageIDs())
	if err != nil {
		return models.AttendanceSummary{EventID: ev.ID}, nil, fmt.Errorf("list attendance: %w", err)
	}
	return attendance.Summarize(ev, records), records, nil
}

// Publish posts the event to every participating squadron's channel that does not carry it
// yet. Squadrons sharing a (guild, channel) get one message. Reminders are scheduled once
// the event has at least one publication.
func (s *Service) Publish(ctx context.Context, eventID uuid.UUID) Result {
	ev, err := s.load(ctx, eventID)
	if errors.Is(err, ErrNotFound) {
		return failed(eventID, err)
	}
	if err != nil {
		return unavailable(eventID, err)
	}
	if ev.Status == models.EventStatusConcluded {
		return failed(eventID, errors.New("event has concluded"))
	}
	squadrons, err := s.squadrons.Squadrons(ctx, ev.SquadronIDs)
	if err != nil {
		return unavailable(eventID, fmt.Errorf("load squadrons: %w", err))
	}
	targets := make([]dispatch.Target, 0, len(squadrons))
	for _, sq := range squadrons {
		if sq.ChannelID == "" {
			s.logger.Warn("squadron has no announcement channel", zap.String("squadron_id", sq.ID.String()))
			continue
		}
		targets = append(targets, dispatch.Target{SquadronID: sq.ID, GuildID: sq.GuildID, ChannelID: sq.ChannelID})
	}
	set := dispatch.Deduplicate(targets)

	// Another instance or an earlier run may already have published some channels.
	live, err := s.store.ListPublications(ctx, ev.ID)
	if err != nil {
		return unavailable(eventID, fmt.Errorf("list publications: %w", err))
	}
	ev.Publications = live
	published := make(map[models.ChannelKey]int, len(live))
	for i, p := range live {
		published[p.Key()] = i
	}

	sum, _, err := s.summary(ctx, ev)
	if err != nil {
		s.logger.Warn("publishing without attendance counts", zap.String("event_id", ev.ID.String()), zap.Error(err))
	}
	msg := render.Announcement(ev, sum)

	res := Result{EventID: ev.ID}
	var errs []error
	for _, m := range set.All() {
		if i, ok := published[m.Key]; ok {
			if err := s.joinPublication(ctx, &ev.Publications[i], m.SquadronIDs); err != nil {
				errs = append(errs, err)
				res.Retryable = true
			}
			continue
		}
		messageID, err := s.chat.SendMessage(ctx, m.Key.ChannelID, msg)
		if err != nil {
			errs = append(errs, fmt.Errorf("post to %s: %w", m.Key.ChannelID, err))
			res.Retryable = res.Retryable || chat.IsTransient(err)
			continue
		}
		pub := models.Publication{
			EventID:     ev.ID,
			GuildID:     m.Key.GuildID,
			ChannelID:   m.Key.ChannelID,
			MessageID:   messageID,
			SquadronIDs: m.SquadronIDs,
		}
		inserted, err := s.store.InsertPublication(ctx, &pub)
		if err != nil {
			s.logger.Error("announcement posted but not recorded",
				zap.String("event_id", ev.ID.String()), zap.String("channel_id", pub.ChannelID), zap.String("message_id", messageID), zap.Error(err))
			errs = append(errs, fmt.Errorf("record publication %s: %w", m.Key.ChannelID, err))
			continue
		}
		if !inserted {
			// Lost the race for this channel; withdraw the duplicate.
			if err := chat.IgnoreGone(s.chat.DeleteMessage(ctx, pub.ChannelID, messageID)); err != nil {
				s.logger.Warn("duplicate announcement left behind", zap.String("message_id", messageID), zap.Error(err))
			}
			continue
		}
		ev.Publications = append(ev.Publications, pub)
		res.MessageIDs = append(res.MessageIDs, messageID)
	}

	if len(ev.Publications) > 0 {
		if err := s.reminders.EnsureScheduled(ctx, ev); err != nil {
			errs = append(errs, err)
			res.Retryable = true
		}
	}
	s.invalidate(ctx, ev.ID)

	if err := errors.Join(errs...); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	s.logger.Info("event published", zap.String("event_id", ev.ID.String()), zap.Int("new_messages", len(res.MessageIDs)))
	return res
}

// SchedulePublish queues the announcement for at. A time that has already passed
// publishes right away.
func (s *Service) SchedulePublish(ctx context.Context, eventID uuid.UUID, at time.Time) Result {
	if !at.After(time.Now()) {
		return s.Publish(ctx, eventID)
	}
	ev, err := s.load(ctx, eventID)
	if errors.Is(err, ErrNotFound) {
		return failed(eventID, err)
	}
	if err != nil {
		return unavailable(eventID, err)
	}
	if ev.Status == models.EventStatusConcluded {
		return failed(eventID, errors.New("event has concluded"))
	}
	sp := models.ScheduledPublication{EventID: ev.ID, PublishAt: at.UTC()}
	if err := s.store.SchedulePublication(ctx, &sp); err != nil {
		return unavailable(eventID, fmt.Errorf("schedule publication: %w", err))
	}
	s.logger.Info("publication scheduled", zap.String("event_id", ev.ID.String()), zap.Time("publish_at", sp.PublishAt))
	return Result{Success: true, EventID: ev.ID}
}

// joinPublication adds squadrons that now share an already published channel, so
// reminders and attendance see them on the existing message.
func (s *Service) joinPublication(ctx context.Context, p *models.Publication, squadronIDs []uuid.UUID) error {
	var missing []uuid.UUID
	for _, id := range squadronIDs {
		if !p.HasSquadron(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		s.logger.Info("channel already published, skipping",
			zap.String("event_id", p.EventID.String()), zap.String("channel_id", p.ChannelID))
		return nil
	}
	if err := s.store.AddPublicationSquadrons(ctx, p.ID, missing); err != nil {
		return fmt.Errorf("join squadrons to %s: %w", p.ChannelID, err)
	}
	p.SquadronIDs = append(p.SquadronIDs, missing...)
	s.logger.Info("squadrons joined existing publication",
		zap.String("event_id", p.EventID.String()), zap.String("channel_id", p.ChannelID), zap.Int("added", len(missing)))
	return nil
}

// EditRequest holds the fields to change; nil fields are left alone.
type EditRequest struct {
	Title       *string               `json:"title"`
	Description *string               `json:"description"`
	StartsAt    *time.Time            `json:"starts_at"`
	EndsAt      *time.Time            `json:"ends_at"`
	Settings    *models.EventSettings `json:"settings"`
}

// Edit updates an event, supersedes its pending reminders when timing changed and
// re-renders every publication.
func (s *Service) Edit(ctx context.Context, eventID uuid.UUID, req EditRequest) Result {
	ev, err := s.load(ctx, eventID)
	if err != nil {
		return failed(eventID, err)
	}
	retime := false
	if req.Title != nil {
		ev.Title = *req.Title
	}
	if req.Description != nil {
		ev.Description = *req.Description
	}
	if req.StartsAt != nil && !req.StartsAt.Equal(ev.StartsAt) {
		ev.StartsAt = *req.StartsAt
		retime = true
	}
	if req.EndsAt != nil {
		ev.EndsAt = req.EndsAt
	}
	if req.Settings != nil {
		old := ev.Settings
		ev.Settings = *req.Settings
		if old.FirstOffset() != ev.Settings.FirstOffset() ||
			old.SecondOffset() != ev.Settings.SecondOffset() ||
			old.DisableSecondReminder != ev.Settings.DisableSecondReminder ||
			old.Filter != ev.Settings.Filter {
			retime = true
		}
	}
	if ev.EndsAt != nil && ev.EndsAt.Before(ev.StartsAt) {
		return failed(eventID, errors.New("end time is before start time"))
	}
	if err := s.store.Update(ctx, ev); err != nil {
		return failed(eventID, fmt.Errorf("update event: %w", err))
	}

	res := Result{EventID: ev.ID, MessageIDs: ev.MessageIDs()}
	var errs []error
	if retime && len(ev.Publications) > 0 && ev.Status != models.EventStatusConcluded {
		if err := s.reminders.Reschedule(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.rerender(ctx, ev); err != nil {
		errs = append(errs, err)
	}
	s.invalidate(ctx, ev.ID)

	if err := errors.Join(errs...); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

func (s *Service) rerender(ctx context.Context, ev *models.Event) error {
	sum, _, err := s.summary(ctx, ev)
	if err != nil {
		return err
	}
	msg := render.Announcement(ev, sum)
	if ev.Status == models.EventStatusConcluded {
		msg = render.Concluded(ev, sum)
	}
	var errs []error
	for _, p := range ev.Publications {
		if p.MessageID == "" {
			continue
		}
		if err := chat.IgnoreGone(s.chat.EditMessage(ctx, p.ChannelID, p.MessageID, msg)); err != nil {
			errs = append(errs, fmt.Errorf("edit %s/%s: %w", p.ChannelID, p.MessageID, err))
		}
	}
	return errors.Join(errs...)
}

// Delete removes an event's chat artifacts and then its rows. A thread is only deleted for
// publications that hold a real thread id. Messages already gone count as deleted. If any
// deletion fails transiently the rows are kept so the delete can be retried.
func (s *Service) Delete(ctx context.Context, eventID uuid.UUID) Result {
	ev, err := s.load(ctx, eventID)
	if err != nil {
		return failed(eventID, err)
	}
	res := Result{EventID: ev.ID}
	var errs []error
	retry := false
	note := func(what string, err error) {
		if err = chat.IgnoreGone(err); err == nil {
			return
		}
		if chat.IsTransient(err) {
			retry = true
		}
		errs = append(errs, fmt.Errorf("%s: %w", what, err))
	}

	for _, p := range ev.Publications {
		if id, ok := p.Thread.ID(); ok {
			note("delete thread "+id, s.chat.DeleteThread(ctx, id))
			res.ThreadIDs = append(res.ThreadIDs, id)
		}
		for _, rid := range p.ReminderMessageIDs {
			note("delete reminder "+rid, s.chat.DeleteMessage(ctx, p.ChannelID, rid))
		}
		if p.MessageID != "" {
			note("delete message "+p.MessageID, s.chat.DeleteMessage(ctx, p.ChannelID, p.MessageID))
			res.MessageIDs = append(res.MessageIDs, p.MessageID)
		}
	}

	if retry {
		res.Error = errors.Join(errs...).Error()
		res.Retryable = true
		return res
	}
	if err := s.store.Delete(ctx, ev.ID); err != nil {
		errs = append(errs, fmt.Errorf("delete event rows: %w", err))
		res.Error = errors.Join(errs...).Error()
		return res
	}
	s.invalidate(ctx, ev.ID)
	if len(errs) > 0 {
		// Rows are gone; leftover chat artifacts could not be removed (permissions, archived).
		s.logger.Warn("event deleted with chat leftovers", zap.String("event_id", ev.ID.String()), zap.Error(errors.Join(errs...)))
	}
	res.Success = true
	s.logger.Info("event deleted", zap.String("event_id", ev.ID.String()),
		zap.Int("messages", len(res.MessageIDs)), zap.Int("threads", len(res.ThreadIDs)))
	return res
}

// ManualReminder selects recipients explicitly or by filter.
type ManualReminder struct {
	UserIDs []string               `json:"user_ids"`
	Filter  models.RecipientFilter `json:"filter"`
}

// SendManualReminder sends an ad-hoc reminder through the same pipeline as scheduled ones.
func (s *Service) SendManualReminder(ctx context.Context, eventID uuid.UUID, req ManualReminder) Result {
	ev, err := s.load(ctx, eventID)
	if err != nil {
		return failed(eventID, err)
	}
	if len(req.UserIDs) == 0 && !req.Filter.Any() {
		return failed(eventID, errors.New("no recipients selected"))
	}
	out, err := s.sender.SendReminder(ctx, ev, dispatch.ReminderRequest{Filter: req.Filter, UserIDs: req.UserIDs})
	if err != nil {
		return failed(eventID, err)
	}
	s.invalidate(ctx, ev.ID)

	res := Result{EventID: ev.ID}
	threads := make(map[string]bool)
	for _, d := range out.Deliveries {
		if d.Err != nil {
			continue
		}
		res.MessageIDs = append(res.MessageIDs, d.MessageID)
		if d.InThread && !threads[d.Destination] {
			threads[d.Destination] = true
			res.ThreadIDs = append(res.ThreadIDs, d.Destination)
		}
	}
	if err := out.Err(); err != nil {
		res.Error = err.Error()
	}
	if out.PersistErr != nil {
		s.logger.Error("manual reminder sent but not recorded", zap.String("event_id", ev.ID.String()), zap.Error(out.PersistErr))
	}
	res.Success = out.Sent() > 0 && res.Error == ""
	if res.Error == "" && out.Sent() == 0 {
		res.Error = "no recipients matched"
	}
	return res
}

// Finalize runs the one-time conclusion step: every publication is re-rendered in its
// final state, the attendance snapshot is archived when storage is configured, and the
// event is stamped finalized. Returns false if another run already finalized it.
func (s *Service) Finalize(ctx context.Context, eventID uuid.UUID) (bool, error) {
	ev, err := s.load(ctx, eventID)
	if err != nil {
		return false, err
	}
	if ev.FinalizedAt != nil {
		return false, nil
	}
	sum, records, err := s.summary(ctx, ev)
	if err != nil {
		return false, err
	}
	msg := render.Concluded(ev, sum)
	var errs []error
	for _, p := range ev.Publications {
		if p.MessageID == "" {
			continue
		}
		err := chat.IgnoreGone(s.chat.EditMessage(ctx, p.ChannelID, p.MessageID, msg))
		if err != nil && chat.IsTransient(err) {
			return false, fmt.Errorf("render final state %s: %w", p.MessageID, err)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		s.logger.Warn("final state not rendered on some publications",
			zap.String("event_id", ev.ID.String()), zap.Error(errors.Join(errs...)))
	}

	now := time.Now()
	if s.archive != nil {
		snapshot := Archive{Event: *ev, Summary: sum, Records: records, FinalizedAt: now}
		if _, err := s.archive.PutArchive(ctx, ev.ID.String(), snapshot); err != nil {
			return false, fmt.Errorf("archive: %w", err)
		}
	}
	done, err := s.store.MarkFinalized(ctx, ev.ID)
	if err != nil {
		return false, fmt.Errorf("mark finalized: %w", err)
	}
	s.invalidate(ctx, ev.ID)
	return done, nil
}
