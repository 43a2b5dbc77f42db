package dispatch

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

// SquadronSource resolves squadrons, including their thread policy.
type SquadronSource interface {
	Squadrons(ctx context.Context, ids []uuid.UUID) ([]models.Squadron, error)
}

// ThreadResolver converges every publication of an event on one discussion thread,
// anchored to the first publication's message.
type ThreadResolver struct {
	chat      chat.Client
	squadrons SquadronSource
	logger    *zap.Logger
}

// NewThreadResolver creates a thread resolver.
func NewThreadResolver(client chat.Client, squadrons SquadronSource, logger *zap.Logger) *ThreadResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThreadResolver{chat: client, squadrons: squadrons, logger: logger}
}

// Resolve decides the thread for ev.Publications[idx], mutating the event's publications in
// place. dirty is true when any publication's thread changed and must be persisted.
// A returned error is transient: the publication is left untouched so a later call retries.
func (r *ThreadResolver) Resolve(ctx context.Context, ev *models.Event, idx int) (models.ThreadRef, bool, error) {
	if idx < 0 || idx >= len(ev.Publications) {
		return models.NoThread(), false, fmt.Errorf("publication index %d out of range", idx)
	}
	cur := &ev.Publications[idx]
	first := ev.FirstPublication()

	if id, ok := existingThread(ev); ok {
		return models.ThreadOf(id), adopt(ev, id), nil
	}

	if first.MessageID == "" {
		return cur.Thread, false, nil
	}

	if cur.Thread.IsDisabled() {
		// Another instance may have created the thread since we gave up.
		id, err := r.chat.MessageThread(ctx, first.ChannelID, first.MessageID)
		if err == nil {
			r.logger.Info("recovered thread for disabled publication",
				zap.String("event_id", ev.ID.String()), zap.String("thread_id", id))
			return models.ThreadOf(id), adopt(ev, id), nil
		}
		if !chat.IsGone(err) {
			r.logger.Debug("thread recovery lookup failed", zap.String("event_id", ev.ID.String()), zap.Error(err))
		}
		return models.ThreadDisabled(), false, nil
	}

	policy, err := r.policy(ctx, cur)
	if err != nil {
		return models.NoThread(), false, fmt.Errorf("thread policy: %w", err)
	}
	if policy == nil {
		cur.Thread = models.ThreadDisabled()
		return cur.Thread, true, nil
	}

	id, err := r.chat.CreateThread(ctx, first.ChannelID, first.MessageID, render.ThreadName(ev), policy.ArchiveMinutes())
	switch {
	case err == nil:
		r.logger.Info("thread created", zap.String("event_id", ev.ID.String()), zap.String("thread_id", id))
		return models.ThreadOf(id), adopt(ev, id), nil
	case errors.Is(err, chat.ErrThreadExists):
		id, ferr := r.chat.MessageThread(ctx, first.ChannelID, first.MessageID)
		if ferr != nil {
			return models.NoThread(), false, fmt.Errorf("fetch existing thread: %w", ferr)
		}
		return models.ThreadOf(id), adopt(ev, id), nil
	case chat.IsTransient(err):
		return models.NoThread(), false, fmt.Errorf("create thread: %w", err)
	default:
		r.logger.Warn("thread creation failed, disabling threads for publication",
			zap.String("event_id", ev.ID.String()),
			zap.String("publication_id", cur.ID.String()),
			zap.Error(err))
		cur.Thread = models.ThreadDisabled()
		return cur.Thread, true, nil
	}
}

// policy returns the first squadron of the publication that wants threads, or nil.
func (r *ThreadResolver) policy(ctx context.Context, pub *models.Publication) (*models.Squadron, error) {
	if len(pub.SquadronIDs) == 0 {
		return nil, nil
	}
	squadrons, err := r.squadrons.Squadrons(ctx, pub.SquadronIDs)
	if err != nil {
		return nil, err
	}
	for i := range squadrons {
		if squadrons[i].UseThreads {
			return &squadrons[i], nil
		}
	}
	return nil, nil
}

func existingThread(ev *models.Event) (string, bool) {
	for _, p := range ev.Publications {
		if id, ok := p.Thread.ID(); ok {
			return id, true
		}
	}
	return "", false
}

// adopt gives every publication without a real thread the thread id.
func adopt(ev *models.Event, id string) bool {
	dirty := false
	for i := range ev.Publications {
		if _, ok := ev.Publications[i].Thread.ID(); ok {
			continue
		}
		ev.Publications[i].Thread = models.ThreadOf(id)
		dirty = true
	}
	return dirty
}
