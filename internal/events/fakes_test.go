package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/squadron-ops/eventbot/internal/dispatch"
	"github.com/squadron-ops/eventbot/internal/models"
)

type memStore struct {
	mu        sync.Mutex
	events    map[uuid.UUID]*models.Event
	deleted   []uuid.UUID
	finalized map[uuid.UUID]bool
	scheduled []models.ScheduledPublication
	// rejectInsert makes InsertPublication report a concurrent winner.
	rejectInsert bool
}

func newMemStore(evs ...*models.Event) *memStore {
	m := &memStore{events: make(map[uuid.UUID]*models.Event), finalized: make(map[uuid.UUID]bool)}
	for _, ev := range evs {
		m.events[ev.ID] = ev
	}
	return m
}

func copyEvent(ev *models.Event) *models.Event {
	cp := *ev
	cp.Publications = append([]models.Publication(nil), ev.Publications...)
	return &cp
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	return copyEvent(ev), nil
}

func (m *memStore) Update(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.ID] = copyEvent(ev)
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) ListPublications(_ context.Context, eventID uuid.UUID) ([]models.Publication, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.events[eventID]; ok {
		return append([]models.Publication(nil), ev.Publications...), nil
	}
	return nil, nil
}

func (m *memStore) InsertPublication(_ context.Context, p *models.Publication) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejectInsert {
		return false, nil
	}
	ev := m.events[p.EventID]
	for _, existing := range ev.Publications {
		if existing.GuildID == p.GuildID && existing.ChannelID == p.ChannelID {
			return false, nil
		}
	}
	p.ID = uuid.New()
	ev.Publications = append(ev.Publications, *p)
	return true, nil
}

func (m *memStore) AddPublicationSquadrons(_ context.Context, publicationID uuid.UUID, squadronIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		for i := range ev.Publications {
			p := &ev.Publications[i]
			if p.ID != publicationID {
				continue
			}
			for _, id := range squadronIDs {
				if !p.HasSquadron(id) {
					p.SquadronIDs = append(p.SquadronIDs, id)
				}
			}
		}
	}
	return nil
}

func (m *memStore) SchedulePublication(_ context.Context, sp *models.ScheduledPublication) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp.ID = uuid.New()
	m.scheduled = append(m.scheduled, *sp)
	return nil
}

func (m *memStore) MarkFinalized(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized[id] {
		return false, nil
	}
	m.finalized[id] = true
	return true, nil
}

type squadronList []models.Squadron

func (s squadronList) Squadrons(_ context.Context, ids []uuid.UUID) ([]models.Squadron, error) {
	var out []models.Squadron
	for _, id := range ids {
		for _, sq := range s {
			if sq.ID == id {
				out = append(out, sq)
			}
		}
	}
	return out, nil
}

type noAttendance struct{}

func (noAttendance) ListForEvent(context.Context, uuid.UUID, []string) ([]models.AttendanceRecord, error) {
	return nil, nil
}

type recordingScheduler struct {
	ensured     int
	rescheduled int
}

func (r *recordingScheduler) EnsureScheduled(context.Context, *models.Event) error {
	r.ensured++
	return nil
}

func (r *recordingScheduler) Reschedule(context.Context, *models.Event) error {
	r.rescheduled++
	return nil
}

type stubSender struct {
	got *dispatch.ReminderRequest
	out *dispatch.Outcome
	err error
}

func (s *stubSender) SendReminder(_ context.Context, _ *models.Event, req dispatch.ReminderRequest) (*dispatch.Outcome, error) {
	s.got = &req
	return s.out, s.err
}

type recordingCache struct{ invalidated []uuid.UUID }

func (c *recordingCache) Invalidate(_ context.Context, id uuid.UUID) {
	c.invalidated = append(c.invalidated, id)
}

type memArchive struct{ keys []string }

func (a *memArchive) PutArchive(_ context.Context, eventID string, _ interface{}) (string, error) {
	a.keys = append(a.keys, eventID)
	return "archives/" + eventID + ".json", nil
}
