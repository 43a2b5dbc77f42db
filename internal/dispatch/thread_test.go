package dispatch

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/chat/chattest"
	"github.com/squadron-ops/eventbot/internal/models"
)

func threadedEvent(roster *fakeRoster, useThreads bool, archive int) *models.Event {
	s1, s2 := uuid.New(), uuid.New()
	roster.addSquadron(models.Squadron{ID: s1, UseThreads: useThreads, ThreadArchiveMinutes: archive})
	roster.addSquadron(models.Squadron{ID: s2, UseThreads: useThreads, ThreadArchiveMinutes: archive})
	return &models.Event{
		ID:          uuid.New(),
		Title:       "Strike",
		SquadronIDs: []uuid.UUID{s1, s2},
		Publications: []models.Publication{
			pub("G", "C1", "m1", s1),
			pub("G", "C2", "m2", s2),
		},
	}
}

func assertConverged(t *testing.T, ev *models.Event) {
	t.Helper()
	ids := make(map[string]struct{})
	for _, p := range ev.Publications {
		if id, ok := p.Thread.ID(); ok {
			ids[id] = struct{}{}
		}
	}
	assert.LessOrEqual(t, len(ids), 1, "publications hold different thread ids")
}

func TestResolve_ReusesThreadFromAnotherPublication(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, true, 1440)
	ev.Publications[0].Thread = models.ThreadOf("T123")
	fake := chattest.New()
	r := NewThreadResolver(fake, roster, nil)

	ref, dirty, err := r.Resolve(context.Background(), ev, 1)
	require.NoError(t, err)
	id, ok := ref.ID()
	require.True(t, ok)
	assert.Equal(t, "T123", id)
	assert.True(t, dirty)
	second, _ := ev.Publications[1].Thread.ID()
	assert.Equal(t, "T123", second)
	assert.Empty(t, fake.CreatedThreads, "must not create a thread on the second message")
	assertConverged(t, ev)
}

func TestResolve_CreatesOnFirstPublicationMessage(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, true, 4320)
	fake := chattest.New()
	r := NewThreadResolver(fake, roster, nil)

	ref, dirty, err := r.Resolve(context.Background(), ev, 1)
	require.NoError(t, err)
	assert.True(t, dirty)
	require.Len(t, fake.CreatedThreads, 1)
	assert.Equal(t, []int{4320}, fake.ArchiveMinutes)

	anchored, err := fake.MessageThread(context.Background(), "C1", "m1")
	require.NoError(t, err)
	id, _ := ref.ID()
	assert.Equal(t, anchored, id)
	for _, p := range ev.Publications {
		got, ok := p.Thread.ID()
		require.True(t, ok)
		assert.Equal(t, id, got)
	}
}

func TestResolve_UnsupportedArchiveDurationFallsBackToDefault(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, true, 90)
	fake := chattest.New()
	r := NewThreadResolver(fake, roster, nil)

	_, _, err := r.Resolve(context.Background(), ev, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{models.ArchiveOneDay}, fake.ArchiveMinutes)
}

func TestResolve_PolicyOffDisables(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, false, 0)
	fake := chattest.New()
	r := NewThreadResolver(fake, roster, nil)

	ref, dirty, err := r.Resolve(context.Background(), ev, 0)
	require.NoError(t, err)
	assert.True(t, ref.IsDisabled())
	assert.True(t, dirty)
	assert.Empty(t, fake.CreatedThreads)
}

func TestResolve_ThreadAlreadyExistsIsAdopted(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, true, 60)
	fake := chattest.New()
	fake.AddThread("m1", "T-race")
	r := NewThreadResolver(fake, roster, nil)

	ref, _, err := r.Resolve(context.Background(), ev, 1)
	require.NoError(t, err)
	id, ok := ref.ID()
	require.True(t, ok)
	assert.Equal(t, "T-race", id)
	assertConverged(t, ev)
}

func TestResolve_PermanentFailureDisablesAndIsNotRetried(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, true, 60)
	fake := chattest.New()
	attempts := 0
	fake.CreateThreadErr = func(string) error {
		attempts++
		return &chat.Error{Kind: chat.ErrPermission}
	}
	r := NewThreadResolver(fake, roster, nil)

	ref, dirty, err := r.Resolve(context.Background(), ev, 0)
	require.NoError(t, err)
	assert.True(t, ref.IsDisabled())
	assert.True(t, dirty)

	ref, dirty, err = r.Resolve(context.Background(), ev, 0)
	require.NoError(t, err)
	assert.True(t, ref.IsDisabled())
	assert.False(t, dirty)
	assert.Equal(t, 1, attempts)
}

func TestResolve_DisabledRecoversThreadCreatedElsewhere(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, true, 60)
	ev.Publications[1].Thread = models.ThreadDisabled()
	fake := chattest.New()
	fake.AddThread("m1", "T-other")
	r := NewThreadResolver(fake, roster, nil)

	ref, dirty, err := r.Resolve(context.Background(), ev, 1)
	require.NoError(t, err)
	id, ok := ref.ID()
	require.True(t, ok)
	assert.Equal(t, "T-other", id)
	assert.True(t, dirty)
	assert.Empty(t, fake.CreatedThreads)
}

func TestResolve_TransientFailureLeavesPublicationUntouched(t *testing.T) {
	roster := newFakeRoster()
	ev := threadedEvent(roster, true, 60)
	fake := chattest.New()
	fake.CreateThreadErr = func(string) error { return &chat.Error{Kind: chat.ErrTransient} }
	r := NewThreadResolver(fake, roster, nil)

	ref, dirty, err := r.Resolve(context.Background(), ev, 0)
	require.Error(t, err)
	assert.True(t, ref.IsNone())
	assert.False(t, dirty)
	assert.True(t, ev.Publications[0].Thread.IsNone())
}

func TestResolve_ConvergesFromAnyPublication(t *testing.T) {
	for idx := 0; idx < 3; idx++ {
		roster := newFakeRoster()
		ev := threadedEvent(roster, true, 60)
		ev.Publications = append(ev.Publications, pub("G2", "C3", "m3", ev.SquadronIDs[0]))
		r := NewThreadResolver(chattest.New(), roster, nil)
		_, _, err := r.Resolve(context.Background(), ev, idx)
		require.NoError(t, err)
		assertConverged(t, ev)
	}
}
