package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/models"
	"github.com/squadron-ops/eventbot/internal/render"
)

var (
	// ErrUnknownMessage: the pressed message does not belong to any event.
	ErrUnknownMessage = errors.New("attendance: message is not an event publication")
	// ErrInvalidResponse: the button carried an unknown response value.
	ErrInvalidResponse = errors.New("attendance: invalid response")
	// ErrEventClosed: the event has concluded and no longer takes responses.
	ErrEventClosed = errors.New("attendance: event concluded")
)

// Store is the append-only attendance log.
type Store interface {
	Insert(ctx context.Context, rec *models.AttendanceRecord) error
	ListForEvent(ctx context.Context, eventID uuid.UUID, messageIDs []string) ([]models.AttendanceRecord, error)
}

// EventLookup resolves a publication message id to its event, publications included.
type EventLookup interface {
	Get(ctx context.Context, messageID string) (*models.Event, error)
}

// Result is the outcome of one press. RenderErr is set when the response was stored
// but one or more messages could not be refreshed.
type Result struct {
	Record    models.AttendanceRecord
	Summary   models.AttendanceSummary
	RenderErr error
}

// Reconciler merges button presses into the attendance log and refreshes the event messages.
type Reconciler struct {
	store  Store
	events EventLookup
	chat   chat.Client
	logger *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(store Store, events EventLookup, client chat.Client, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, events: events, chat: client, logger: logger}
}

// HandlePress stores the press, then re-renders every publication of the event.
// The insert always happens before any render attempt.
func (r *Reconciler) HandlePress(ctx context.Context, p chat.Press) (*Result, error) {
	resp, ok := models.ParseResponse(p.Response)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResponse, p.Response)
	}
	ev, err := r.events.Get(ctx, p.MessageID)
	if err != nil {
		return nil, fmt.Errorf("lookup event: %w", err)
	}
	if ev == nil {
		return nil, ErrUnknownMessage
	}
	if ev.Status == models.EventStatusConcluded {
		return nil, ErrEventClosed
	}

	rec := models.AttendanceRecord{
		EventID:     ev.ID,
		MessageID:   p.MessageID,
		UserID:      p.UserID,
		DisplayName: r.displayName(ctx, p),
		Response:    resp,
		CreatedAt:   p.PressedAt,
	}
	if err := r.store.Insert(ctx, &rec); err != nil {
		return nil, fmt.Errorf("insert attendance: %w", err)
	}

	res := &Result{Record: rec}
	records, err := r.store.ListForEvent(ctx, ev.ID, ev.MessageIDs())
	if err != nil {
		res.RenderErr = fmt.Errorf("list attendance: %w", err)
		r.logger.Warn("attendance stored but summary unavailable", zap.String("event_id", ev.ID.String()), zap.Error(err))
		return res, nil
	}
	res.Summary = Summarize(ev, records)
	res.RenderErr = r.Render(ctx, ev, res.Summary)
	if res.RenderErr != nil {
		r.logger.Warn("attendance stored but render failed", zap.String("event_id", ev.ID.String()), zap.Error(res.RenderErr))
	}
	return res, nil
}

// Render edits every publication message to reflect the summary. Gone messages are skipped.
func (r *Reconciler) Render(ctx context.Context, ev *models.Event, s models.AttendanceSummary) error {
	msg := render.Announcement(ev, s)
	var errs []error
	for _, pub := range ev.Publications {
		if pub.MessageID == "" {
			continue
		}
		if err := chat.IgnoreGone(r.chat.EditMessage(ctx, pub.ChannelID, pub.MessageID, msg)); err != nil {
			errs = append(errs, fmt.Errorf("edit %s/%s: %w", pub.ChannelID, pub.MessageID, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) displayName(ctx context.Context, p chat.Press) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.GuildID != "" {
		if m, err := r.chat.Member(ctx, p.GuildID, p.UserID); err == nil && m.DisplayName != "" {
			return m.DisplayName
		}
	}
	return p.UserID
}
