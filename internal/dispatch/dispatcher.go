// Package dispatch turns an event and its publications into outbound reminder messages:
// recipient evaluation, channel deduplication, thread resolution, send and persist.
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

// ErrNoPublications: the event has no publication with a live message to remind from.
var ErrNoPublications = errors.New("dispatch: event has no valid publications")

// PublicationStore reads and writes publication state.
type PublicationStore interface {
	ListPublications(ctx context.Context, eventID uuid.UUID) ([]models.Publication, error)
	SavePublicationState(ctx context.Context, pub *models.Publication) error
}

// ReminderRequest describes one reminder firing.
type ReminderRequest struct {
	Kind    string
	Filter  models.RecipientFilter
	UserIDs []string
}

// Delivery is one outbound message (or failed attempt).
type Delivery struct {
	PublicationID uuid.UUID
	Destination   string
	InThread      bool
	MessageID     string
	UserIDs       []string
	Err           error
}

// Outcome summarizes a reminder dispatch.
type Outcome struct {
	Deliveries []Delivery
	Skipped    []models.ChannelKey
	Unroutable []Recipient
	Orphans    []Recipient
	Inactive   int
	// PersistErr is set when messages went out but their ids or thread state were not recorded.
	PersistErr error
}

// Sent returns the number of successful deliveries.
func (o *Outcome) Sent() int {
	n := 0
	for _, d := range o.Deliveries {
		if d.Err == nil {
			n++
		}
	}
	return n
}

// Err joins delivery errors.
func (o *Outcome) Err() error {
	var errs []error
	for _, d := range o.Deliveries {
		if d.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Destination, d.Err))
		}
	}
	return errors.Join(errs...)
}

// Retryable reports whether nothing was delivered and at least one failure was transient.
func (o *Outcome) Retryable() bool {
	if o.Sent() > 0 {
		return false
	}
	for _, d := range o.Deliveries {
		if d.Err != nil && chat.IsTransient(d.Err) {
			return true
		}
	}
	return false
}

// Dispatcher sends reminders for events.
type Dispatcher struct {
	evaluator      *Evaluator
	threads        *ThreadResolver
	chat           chat.Client
	pubs           PublicationStore
	orphanFallback bool
	logger         *zap.Logger
}

// NewDispatcher creates a dispatcher. With orphanFallback, recipients whose squadron has no
// publication are mentioned on the first publication's destination.
func NewDispatcher(evaluator *Evaluator, threads *ThreadResolver, client chat.Client, pubs PublicationStore, orphanFallback bool, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		evaluator:      evaluator,
		threads:        threads,
		chat:           client,
		pubs:           pubs,
		orphanFallback: orphanFallback,
		logger:         logger,
	}
}

type destination struct {
	pubIdx     int
	inThread   bool
	channel    string
	recipients []Recipient
	seen       map[string]struct{}
}

// SendReminder evaluates recipients, merges them per destination and sends one message per
// destination. ev.Publications is updated in place with the persisted state.
func (d *Dispatcher) SendReminder(ctx context.Context, ev *models.Event, req ReminderRequest) (*Outcome, error) {
	if !hasLivePublication(ev) {
		return nil, ErrNoPublications
	}
	eval, err := d.evaluator.Evaluate(ctx, EvalRequest{Event: ev, Filter: req.Filter, UserIDs: req.UserIDs})
	if err != nil {
		return nil, err
	}
	out := &Outcome{Unroutable: eval.Unroutable, Inactive: eval.Inactive}

	targets, orphans := d.route(ev, eval.Recipients)
	out.Orphans = orphans
	set := Deduplicate(targets)

	before := make(map[uuid.UUID]models.ThreadRef, len(ev.Publications))
	for _, p := range ev.Publications {
		before[p.ID] = p.Thread
	}

	var order []string
	dests := make(map[string]*destination)
	for _, m := range set.All() {
		if len(m.Recipients) == 0 {
			out.Skipped = append(out.Skipped, m.Key)
			continue
		}
		idx := publicationIndex(ev, m.Key)
		if idx < 0 {
			out.Skipped = append(out.Skipped, m.Key)
			continue
		}
		ref, _, err := d.threads.Resolve(ctx, ev, idx)
		if err != nil {
			d.logger.Warn("thread resolution failed, posting to channel",
				zap.String("event_id", ev.ID.String()), zap.String("channel_id", m.Key.ChannelID), zap.Error(err))
		}
		key, dest := "c:"+m.Key.ChannelID, &destination{pubIdx: idx, channel: m.Key.ChannelID}
		if id, ok := ref.ID(); ok {
			key, dest = "t:"+id, &destination{pubIdx: idx, inThread: true, channel: id}
		}
		if existing, ok := dests[key]; ok {
			dest = existing
		} else {
			dest.seen = make(map[string]struct{})
			dests[key] = dest
			order = append(order, key)
		}
		for _, r := range m.Recipients {
			if _, dup := dest.seen[r.UserID]; dup {
				continue
			}
			dest.seen[r.UserID] = struct{}{}
			dest.recipients = append(dest.recipients, r)
		}
	}

	added := make(map[uuid.UUID][]string)
	gone := make(map[string]bool)
	for _, key := range order {
		dest := dests[key]
		delivery := d.deliver(ctx, ev, req.Kind, dest)
		if dest.inThread && !delivery.InThread {
			gone[dest.channel] = true
			disableThread(ev, dest.channel)
		}
		if delivery.Err == nil && !delivery.InThread {
			added[delivery.PublicationID] = append(added[delivery.PublicationID], delivery.MessageID)
		}
		out.Deliveries = append(out.Deliveries, delivery)
	}

	var changed []uuid.UUID
	for _, p := range ev.Publications {
		if p.Thread != before[p.ID] || len(added[p.ID]) > 0 {
			changed = append(changed, p.ID)
		}
	}
	if len(changed) > 0 {
		out.PersistErr = d.persist(ctx, ev, changed, added, gone)
		if out.PersistErr != nil {
			d.logger.Error("reminder sent but not recorded",
				zap.String("event_id", ev.ID.String()),
				zap.Int("deliveries", out.Sent()),
				zap.Error(out.PersistErr))
		}
	}
	return out, nil
}

func (d *Dispatcher) deliver(ctx context.Context, ev *models.Event, kind string, dest *destination) Delivery {
	pub := ev.Publications[dest.pubIdx]
	ids := make([]string, 0, len(dest.recipients))
	for _, r := range dest.recipients {
		ids = append(ids, r.UserID)
	}
	msg := render.Reminder(ev, kind, ids)
	delivery := Delivery{PublicationID: pub.ID, Destination: dest.channel, InThread: dest.inThread, UserIDs: ids}

	if dest.inThread {
		id, err := d.chat.PostToThread(ctx, dest.channel, msg)
		if err == nil {
			delivery.MessageID = id
			return delivery
		}
		if !chat.IsGone(err) && !errors.Is(err, chat.ErrArchived) {
			delivery.Err = err
			return delivery
		}
		d.logger.Warn("thread unavailable, posting reminder to channel",
			zap.String("event_id", ev.ID.String()), zap.String("thread_id", dest.channel), zap.Error(err))
		delivery.InThread = false
		delivery.Destination = pub.ChannelID
	}
	id, err := d.chat.SendMessage(ctx, pub.ChannelID, msg)
	delivery.MessageID, delivery.Err = id, err
	return delivery
}

// route assigns each recipient to the publication carrying their squadron. The returned targets
// include one empty target per publication squadron so silent destinations stay visible.
func (d *Dispatcher) route(ev *models.Event, recipients []Recipient) ([]Target, []Recipient) {
	var (
		targets []Target
		index   = make(map[uuid.UUID]int)
		orphans []Recipient
	)
	for _, p := range ev.Publications {
		if p.MessageID == "" {
			continue
		}
		for _, sq := range p.SquadronIDs {
			if _, ok := index[sq]; ok {
				continue
			}
			index[sq] = len(targets)
			targets = append(targets, Target{SquadronID: sq, GuildID: p.GuildID, ChannelID: p.ChannelID})
		}
	}
	for _, r := range recipients {
		i, ok := index[r.SquadronID]
		if !ok {
			orphans = append(orphans, r)
			continue
		}
		targets[i].Recipients = append(targets[i].Recipients, r)
	}
	if len(orphans) > 0 {
		first := firstLivePublication(ev)
		d.logger.Warn("recipients not covered by any publication channel",
			zap.String("event_id", ev.ID.String()),
			zap.Int("count", len(orphans)),
			zap.Bool("fallback_to_first_publication", d.orphanFallback))
		if d.orphanFallback && first != nil {
			targets = append(targets, Target{GuildID: first.GuildID, ChannelID: first.ChannelID, Recipients: orphans})
		}
	}
	return targets, orphans
}

func (d *Dispatcher) persist(ctx context.Context, ev *models.Event, changed []uuid.UUID, added map[uuid.UUID][]string, gone map[string]bool) error {
	latest, err := d.pubs.ListPublications(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("refresh publications: %w", err)
	}
	byID := make(map[uuid.UUID]models.Publication, len(latest))
	for _, p := range latest {
		byID[p.ID] = p
	}
	var errs []error
	for _, id := range changed {
		i := publicationIndexByID(ev, id)
		fresh, ok := byID[id]
		if !ok {
			errs = append(errs, fmt.Errorf("publication %s vanished", id))
			continue
		}
		merged := MergePublicationState(fresh, ev.Publications[i], added[id])
		if tid, ok := merged.Thread.ID(); ok && gone[tid] {
			merged.Thread = models.ThreadDisabled()
		}
		if err := d.pubs.SavePublicationState(ctx, &merged); err != nil {
			errs = append(errs, fmt.Errorf("save publication %s: %w", id, err))
			continue
		}
		ev.Publications[i] = merged
	}
	return errors.Join(errs...)
}

// disableThread downgrades every publication anchored to a thread that no longer accepts posts.
func disableThread(ev *models.Event, threadID string) {
	for i := range ev.Publications {
		if id, ok := ev.Publications[i].Thread.ID(); ok && id == threadID {
			ev.Publications[i].Thread = models.ThreadDisabled()
		}
	}
}

func hasLivePublication(ev *models.Event) bool {
	return firstLivePublication(ev) != nil
}

func firstLivePublication(ev *models.Event) *models.Publication {
	for i := range ev.Publications {
		if ev.Publications[i].MessageID != "" {
			return &ev.Publications[i]
		}
	}
	return nil
}

func publicationIndex(ev *models.Event, key models.ChannelKey) int {
	for i, p := range ev.Publications {
		if p.Key() == key {
			return i
		}
	}
	return -1
}

func publicationIndexByID(ev *models.Event, id uuid.UUID) int {
	for i, p := range ev.Publications {
		if p.ID == id {
			return i
		}
	}
	return -1
}
