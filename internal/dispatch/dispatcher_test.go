package dispatch

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/chat/chattest"
	"github.com/squadron-ops/eventbot/internal/models"
)

type harness struct {
	roster *fakeRoster
	att    *fakeAttendance
	chat   *chattest.Fake
	pubs   *fakePubs
	d      *Dispatcher
}

func newHarness(ev *models.Event, roster *fakeRoster, att *fakeAttendance, fallback bool) *harness {
	h := &harness{roster: roster, att: att, chat: chattest.New(), pubs: newFakePubs(ev)}
	h.d = NewDispatcher(
		NewEvaluator(att, roster, nil),
		NewThreadResolver(h.chat, roster, nil),
		h.chat, h.pubs, fallback, nil,
	)
	return h
}

var everyone = models.RecipientFilter{Accepted: true, Tentative: true, Declined: true, NoResponse: true}

func TestSendReminder_SharedChannelGetsOneMessage(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	roster := newFakeRoster()
	roster.addSquadron(models.Squadron{ID: s1})
	roster.addSquadron(models.Squadron{ID: s2})
	roster.addMember("a1", true, &s1)
	roster.addMember("a2", true, &s1)
	roster.addMember("b1", true, &s2)

	att := &fakeAttendance{}
	att.add("a1", models.ResponseAccepted, time.Now())

	ev := &models.Event{
		ID:          uuid.New(),
		Title:       "Shared",
		StartsAt:    time.Now().Add(time.Hour),
		SquadronIDs: []uuid.UUID{s1, s2},
		Publications: []models.Publication{
			pub("G", "C", "m1", s1),
			pub("G", "C", "m2", s2),
		},
	}
	h := newHarness(ev, roster, att, true)

	out, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Kind: "first", Filter: everyone})
	require.NoError(t, err)
	require.NoError(t, out.Err())

	sent := h.chat.SentTo("C")
	require.Len(t, sent, 1, "one message per (guild, channel)")
	assert.ElementsMatch(t, []string{"a1", "a2", "b1"}, sent[0].Message.Mentions)
	assert.Equal(t, 1, out.Sent())
}

func TestSendReminder_ThreadedEventPostsOnceIntoThread(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	roster := newFakeRoster()
	roster.addSquadron(models.Squadron{ID: s1, UseThreads: true})
	roster.addSquadron(models.Squadron{ID: s2, UseThreads: true})
	roster.addMember("a1", true, &s1)
	roster.addMember("b1", true, &s2)

	ev := &models.Event{
		ID:          uuid.New(),
		Title:       "Threads",
		StartsAt:    time.Now().Add(time.Hour),
		SquadronIDs: []uuid.UUID{s1, s2},
		Publications: []models.Publication{
			pub("G", "C1", "m1", s1),
			pub("G", "C2", "m2", s2),
		},
	}
	h := newHarness(ev, roster, &fakeAttendance{}, true)

	out, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	require.Len(t, h.chat.CreatedThreads, 1)
	thread := h.chat.CreatedThreads[0]
	assert.Len(t, h.chat.SentTo(thread), 1)
	assert.Empty(t, h.chat.SentTo("C1"))
	assert.Empty(t, h.chat.SentTo("C2"))
	require.Len(t, out.Deliveries, 1)
	assert.True(t, out.Deliveries[0].InThread)

	for _, p := range h.pubs.rows {
		id, ok := p.Thread.ID()
		require.True(t, ok)
		assert.Equal(t, thread, id)
		assert.Empty(t, p.ReminderMessageIDs, "thread posts are not tracked for cleanup")
	}
}

func TestSendReminder_RecordsChannelReminderIDs(t *testing.T) {
	s1 := uuid.New()
	roster := newFakeRoster()
	roster.addSquadron(models.Squadron{ID: s1})
	roster.addMember("a1", true, &s1)
	ev := &models.Event{ID: uuid.New(), StartsAt: time.Now(), SquadronIDs: []uuid.UUID{s1},
		Publications: []models.Publication{pub("G", "C", "m1", s1)}}
	h := newHarness(ev, roster, &fakeAttendance{}, true)

	out, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	require.NoError(t, out.PersistErr)
	stored := h.pubs.rows[ev.Publications[0].ID]
	assert.Equal(t, []string{out.Deliveries[0].MessageID}, stored.ReminderMessageIDs)
	assert.True(t, stored.Thread.IsDisabled())
}

func TestSendReminder_DoesNotClobberConcurrentThread(t *testing.T) {
	s1 := uuid.New()
	roster := newFakeRoster()
	roster.addSquadron(models.Squadron{ID: s1})
	roster.addMember("a1", true, &s1)
	ev := &models.Event{ID: uuid.New(), StartsAt: time.Now(), SquadronIDs: []uuid.UUID{s1},
		Publications: []models.Publication{pub("G", "C", "m1", s1)}}
	h := newHarness(ev, roster, &fakeAttendance{}, true)
	id := ev.Publications[0].ID
	h.pubs.concurrent = func(rows map[uuid.UUID]models.Publication) {
		p := rows[id]
		p.Thread = models.ThreadOf("T-peer")
		p.ReminderMessageIDs = []string{"peer-msg"}
		rows[id] = p
	}

	out, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	stored := h.pubs.rows[id]
	got, ok := stored.Thread.ID()
	require.True(t, ok)
	assert.Equal(t, "T-peer", got)
	assert.Equal(t, []string{"peer-msg", out.Deliveries[0].MessageID}, stored.ReminderMessageIDs)
}

func TestSendReminder_OrphansFallBackToFirstPublication(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	roster := newFakeRoster()
	roster.addSquadron(models.Squadron{ID: s1})
	roster.addMember("a1", true, &s1)
	roster.addMember("x1", true, &s2)

	ev := &models.Event{ID: uuid.New(), StartsAt: time.Now(), SquadronIDs: []uuid.UUID{s1},
		Publications: []models.Publication{pub("G", "C", "m1", s1)}}
	att := &fakeAttendance{}
	att.add("x1", models.ResponseAccepted, time.Now())

	h := newHarness(ev, roster, att, true)
	out, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	require.Len(t, out.Orphans, 1)
	sent := h.chat.SentTo("C")
	require.Len(t, sent, 1)
	assert.ElementsMatch(t, []string{"a1", "x1"}, sent[0].Message.Mentions)

	h2 := newHarness(ev, roster, att, false)
	_, err = h2.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	sent = h2.chat.SentTo("C")
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"a1"}, sent[0].Message.Mentions)
}

func TestSendReminder_NoPublications(t *testing.T) {
	ev := &models.Event{ID: uuid.New(), Publications: []models.Publication{{ID: uuid.New(), ChannelID: "C"}}}
	h := newHarness(ev, newFakeRoster(), &fakeAttendance{}, true)
	_, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	assert.ErrorIs(t, err, ErrNoPublications)
}

func TestSendReminder_TransientFailureIsRetryable(t *testing.T) {
	s1 := uuid.New()
	roster := newFakeRoster()
	roster.addSquadron(models.Squadron{ID: s1})
	roster.addMember("a1", true, &s1)
	ev := &models.Event{ID: uuid.New(), StartsAt: time.Now(), SquadronIDs: []uuid.UUID{s1},
		Publications: []models.Publication{pub("G", "C", "m1", s1)}}
	h := newHarness(ev, roster, &fakeAttendance{}, true)
	h.chat.SendErr = func(string) error { return &chat.Error{Kind: chat.ErrTransient} }

	out, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Sent())
	assert.True(t, out.Retryable())
	assert.True(t, strings.Contains(out.Err().Error(), "C"))
}

// A deleted thread must not be tried again on every reminder.
func TestSendReminder_GoneThreadIsDisabled(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	roster := newFakeRoster()
	roster.addSquadron(models.Squadron{ID: s1, UseThreads: true})
	roster.addSquadron(models.Squadron{ID: s2, UseThreads: true})
	roster.addMember("a1", true, &s1)
	roster.addMember("b1", true, &s2)
	p1, p2 := pub("G", "C1", "m1", s1), pub("G", "C2", "m2", s2)
	p1.Thread, p2.Thread = models.ThreadOf("T-dead"), models.ThreadOf("T-dead")
	ev := &models.Event{ID: uuid.New(), StartsAt: time.Now(), SquadronIDs: []uuid.UUID{s1, s2},
		Publications: []models.Publication{p1, p2}}
	h := newHarness(ev, roster, &fakeAttendance{}, true)
	threadPosts := 0
	h.chat.SendErr = func(channelID string) error {
		if channelID == "T-dead" {
			threadPosts++
			return &chat.Error{Kind: chat.ErrNotFound, Code: 10003}
		}
		return nil
	}

	out, err := h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	require.NoError(t, out.PersistErr)
	require.NoError(t, out.Err())
	require.Len(t, out.Deliveries, 1)
	assert.False(t, out.Deliveries[0].InThread)
	assert.Equal(t, 1, threadPosts)
	for _, p := range h.pubs.rows {
		assert.True(t, p.Thread.IsDisabled(), p.ChannelID)
	}
	assert.Equal(t, []string{out.Deliveries[0].MessageID}, h.pubs.rows[p1.ID].ReminderMessageIDs)

	out, err = h.d.SendReminder(context.Background(), ev, ReminderRequest{Filter: everyone})
	require.NoError(t, err)
	require.NoError(t, out.Err())
	assert.Equal(t, 1, threadPosts)
	assert.Len(t, h.chat.SentTo("C1"), 2)
	assert.Len(t, h.chat.SentTo("C2"), 1)
}

func TestMergePublicationState(t *testing.T) {
	base := models.Publication{ID: uuid.New(), ReminderMessageIDs: []string{"r1"}}

	latest := base
	local := base
	local.Thread = models.ThreadOf("T1")
	merged := MergePublicationState(latest, local, []string{"r2", "r1"})
	id, _ := merged.Thread.ID()
	assert.Equal(t, "T1", id)
	assert.Equal(t, []string{"r1", "r2"}, merged.ReminderMessageIDs)

	latest.Thread = models.ThreadOf("T-db")
	merged = MergePublicationState(latest, local, nil)
	id, _ = merged.Thread.ID()
	assert.Equal(t, "T-db", id)

	latest = base
	local.Thread = models.ThreadDisabled()
	assert.True(t, MergePublicationState(latest, local, nil).Thread.IsDisabled())
}
