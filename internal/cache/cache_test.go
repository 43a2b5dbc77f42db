package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-ops/eventbot/internal/models"
)

type fakeLoader struct {
	mu     sync.Mutex
	events map[uuid.UUID]models.Event
	loads  int
	err    error
}

func (f *fakeLoader) GetByMessageID(_ context.Context, messageID string) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	for _, ev := range f.events {
		for _, id := range ev.MessageIDs() {
			if id == messageID {
				cp := ev
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeLoader) ListOpen(_ context.Context) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Event
	for _, ev := range f.events {
		out = append(out, ev)
	}
	return out, nil
}

type recordingBus struct{ published []uuid.UUID }

func (b *recordingBus) PublishInvalidation(_ context.Context, id uuid.UUID) error {
	b.published = append(b.published, id)
	return nil
}

func event(title string, messageIDs ...string) models.Event {
	ev := models.Event{ID: uuid.New(), Title: title}
	for _, m := range messageIDs {
		ev.Publications = append(ev.Publications, models.Publication{ID: uuid.New(), EventID: ev.ID, MessageID: m})
	}
	return ev
}

func TestGet_ReadThroughAndHit(t *testing.T) {
	ev := event("Op", "m1", "m2")
	loader := &fakeLoader{events: map[uuid.UUID]models.Event{ev.ID: ev}}
	c := New(loader, nil, nil)
	ctx := context.Background()

	got, err := c.Get(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ev.ID, got.ID)

	got, err = c.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, 1, loader.loads, "second message id served from cache")
}

func TestGet_UnknownMessage(t *testing.T) {
	c := New(&fakeLoader{}, nil, nil)
	got, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Len())
}

func TestGet_LoaderError(t *testing.T) {
	c := New(&fakeLoader{err: errors.New("db down")}, nil, nil)
	_, err := c.Get(context.Background(), "m1")
	assert.Error(t, err)
}

func TestGet_ReturnsPrivateCopies(t *testing.T) {
	ev := event("Op", "m1")
	c := New(&fakeLoader{}, nil, nil)
	c.Set(&ev)

	a, _ := c.Get(context.Background(), "m1")
	a.Publications[0].Thread = models.ThreadOf("T1")
	a.Title = "changed"

	b, _ := c.Get(context.Background(), "m1")
	assert.True(t, b.Publications[0].Thread.IsNone())
	assert.Equal(t, "Op", b.Title)
}

func TestInvalidate_DropsAndBroadcasts(t *testing.T) {
	ev := event("Op", "m1", "m2")
	bus := &recordingBus{}
	c := New(&fakeLoader{}, bus, nil)
	c.Set(&ev)
	require.Equal(t, 1, c.Len())

	c.Invalidate(context.Background(), ev.ID)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, []uuid.UUID{ev.ID}, bus.published)
}

func TestSet_ReplacesStaleMessageIDs(t *testing.T) {
	ev := event("Op", "m1", "m2")
	loader := &fakeLoader{events: map[uuid.UUID]models.Event{}}
	c := New(loader, nil, nil)
	c.Set(&ev)

	ev.Publications = ev.Publications[:1]
	c.Set(&ev)

	got, err := c.Get(context.Background(), "m2")
	require.NoError(t, err)
	assert.Nil(t, got, "m2 no longer belongs to the event")
}

func TestReloadAll(t *testing.T) {
	a, b := event("A", "a1"), event("B", "b1")
	loader := &fakeLoader{events: map[uuid.UUID]models.Event{a.ID: a}}
	c := New(loader, nil, nil)
	stale := event("Stale", "s1")
	c.Set(&stale)

	loader.events[b.ID] = b
	require.NoError(t, c.ReloadAll(context.Background()))
	assert.Equal(t, 2, c.Len())

	loads := loader.loads
	got, err := c.Get(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, loads, loader.loads)

	got, err = c.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReloadAll_KeepsContentsOnError(t *testing.T) {
	ev := event("Op", "m1")
	loader := &fakeLoader{err: errors.New("boom")}
	c := New(loader, nil, nil)
	c.Set(&ev)
	assert.Error(t, c.ReloadAll(context.Background()))
	assert.Equal(t, 1, c.Len())
}
