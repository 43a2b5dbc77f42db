package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/squadron-ops/eventbot/internal/models"
)

type fakeAttendance struct {
	records []models.AttendanceRecord
}

func (f *fakeAttendance) ListForEvent(_ context.Context, _ uuid.UUID, _ []string) ([]models.AttendanceRecord, error) {
	return f.records, nil
}

func (f *fakeAttendance) add(user string, resp models.Response, at time.Time) {
	f.records = append(f.records, models.AttendanceRecord{
		ID: uuid.New(), UserID: user, DisplayName: user, Response: resp, CreatedAt: at,
	})
}

type fakeRoster struct {
	squadrons   map[uuid.UUID]models.Squadron
	members     map[string]models.RosterMember
	assignments map[string]models.SquadronAssignment
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		squadrons:   make(map[uuid.UUID]models.Squadron),
		members:     make(map[string]models.RosterMember),
		assignments: make(map[string]models.SquadronAssignment),
	}
}

func (f *fakeRoster) addSquadron(s models.Squadron) { f.squadrons[s.ID] = s }

// addMember puts a user on the roster; a nil squadron leaves them unassigned.
func (f *fakeRoster) addMember(user string, active bool, squadron *uuid.UUID) {
	f.members[user] = models.RosterMember{UserID: user, DisplayName: "name-" + user, Active: active}
	if squadron != nil {
		f.assignments[user] = models.SquadronAssignment{UserID: user, SquadronID: *squadron, StartedAt: time.Now().Add(-time.Hour)}
	}
}

func (f *fakeRoster) Squadrons(_ context.Context, ids []uuid.UUID) ([]models.Squadron, error) {
	var out []models.Squadron
	for _, id := range ids {
		if s, ok := f.squadrons[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRoster) SquadronMembers(_ context.Context, ids []uuid.UUID) ([]models.RosterMember, error) {
	var out []models.RosterMember
	for user, a := range f.assignments {
		for _, id := range ids {
			if a.SquadronID == id {
				out = append(out, f.members[user])
			}
		}
	}
	return out, nil
}

func (f *fakeRoster) Members(_ context.Context, userIDs []string) (map[string]models.RosterMember, error) {
	out := make(map[string]models.RosterMember)
	for _, id := range userIDs {
		if m, ok := f.members[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeRoster) CurrentAssignments(_ context.Context, userIDs []string) (map[string]models.SquadronAssignment, error) {
	out := make(map[string]models.SquadronAssignment)
	for _, id := range userIDs {
		if a, ok := f.assignments[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// fakePubs stores publications; concurrent lets a test change rows behind the dispatcher's back.
type fakePubs struct {
	rows       map[uuid.UUID]models.Publication
	order      []uuid.UUID
	saved      int
	concurrent func(rows map[uuid.UUID]models.Publication)
}

func newFakePubs(ev *models.Event) *fakePubs {
	f := &fakePubs{rows: make(map[uuid.UUID]models.Publication)}
	for _, p := range ev.Publications {
		f.rows[p.ID] = p
		f.order = append(f.order, p.ID)
	}
	return f
}

func (f *fakePubs) ListPublications(_ context.Context, _ uuid.UUID) ([]models.Publication, error) {
	if f.concurrent != nil {
		f.concurrent(f.rows)
	}
	out := make([]models.Publication, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.rows[id])
	}
	return out, nil
}

func (f *fakePubs) SavePublicationState(_ context.Context, pub *models.Publication) error {
	f.saved++
	f.rows[pub.ID] = *pub
	return nil
}

func pub(guild, channel, message string, squadrons ...uuid.UUID) models.Publication {
	return models.Publication{ID: uuid.New(), GuildID: guild, ChannelID: channel, MessageID: message, SquadronIDs: squadrons}
}
