package dispatch

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-ops/eventbot/internal/models"
)

func userIDs(rs []Recipient) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.UserID)
	}
	sort.Strings(out)
	return out
}

func TestEvaluate_NoResponseExcludesRespondedAndInactive(t *testing.T) {
	sq := uuid.New()
	roster := newFakeRoster()
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		roster.addMember(u, true, &sq)
	}
	roster.addMember("u5", false, &sq)

	att := &fakeAttendance{}
	now := time.Now()
	att.add("u1", models.ResponseAccepted, now)
	att.add("u2", models.ResponseAccepted, now)

	ev := &models.Event{ID: uuid.New(), SquadronIDs: []uuid.UUID{sq}}
	e := NewEvaluator(att, roster, nil)
	out, err := e.Evaluate(context.Background(), EvalRequest{Event: ev, Filter: models.RecipientFilter{NoResponse: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{"u3", "u4"}, userIDs(out.Recipients))
	for _, r := range out.Recipients {
		assert.Equal(t, models.ResponseNone, r.Response)
		assert.Equal(t, sq, r.SquadronID)
	}
}

func TestEvaluate_FiltersOnLatestResponse(t *testing.T) {
	sq := uuid.New()
	roster := newFakeRoster()
	roster.addMember("u1", true, &sq)
	roster.addMember("u2", true, &sq)

	att := &fakeAttendance{}
	t0 := time.Now()
	att.add("u1", models.ResponseDeclined, t0.Add(2*time.Minute))
	att.add("u1", models.ResponseAccepted, t0)
	att.add("u2", models.ResponseTentative, t0)
	att.add("u2", models.ResponseAccepted, t0.Add(time.Minute))

	ev := &models.Event{ID: uuid.New(), SquadronIDs: []uuid.UUID{sq}}
	e := NewEvaluator(att, roster, nil)
	out, err := e.Evaluate(context.Background(), EvalRequest{Event: ev, Filter: models.RecipientFilter{Accepted: true}})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, userIDs(out.Recipients))
}

func TestEvaluate_RemovedFromRosterIsSilentlyExcluded(t *testing.T) {
	sq := uuid.New()
	roster := newFakeRoster()
	roster.addMember("u1", false, &sq)

	att := &fakeAttendance{}
	att.add("u1", models.ResponseAccepted, time.Now())
	att.add("ghost", models.ResponseAccepted, time.Now())

	e := NewEvaluator(att, roster, nil)
	out, err := e.Evaluate(context.Background(), EvalRequest{
		Event:  &models.Event{ID: uuid.New()},
		Filter: models.RecipientFilter{Accepted: true},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Recipients)
	assert.Empty(t, out.Unroutable)
	assert.Equal(t, 2, out.Inactive)
}

func TestEvaluate_UnassignedUserIsReportedUnroutable(t *testing.T) {
	roster := newFakeRoster()
	roster.addMember("u1", true, nil)

	att := &fakeAttendance{}
	att.add("u1", models.ResponseTentative, time.Now())

	e := NewEvaluator(att, roster, nil)
	out, err := e.Evaluate(context.Background(), EvalRequest{
		Event:  &models.Event{ID: uuid.New()},
		Filter: models.RecipientFilter{Tentative: true},
	})
	require.NoError(t, err)
	assert.Empty(t, out.Recipients)
	require.Len(t, out.Unroutable, 1)
	assert.Equal(t, "u1", out.Unroutable[0].UserID)
}

func TestEvaluate_ExplicitListIgnoresFilter(t *testing.T) {
	sq := uuid.New()
	roster := newFakeRoster()
	roster.addMember("u1", true, &sq)
	roster.addMember("u2", true, &sq)

	att := &fakeAttendance{}
	att.add("u1", models.ResponseDeclined, time.Now())

	e := NewEvaluator(att, roster, nil)
	out, err := e.Evaluate(context.Background(), EvalRequest{
		Event:   &models.Event{ID: uuid.New()},
		UserIDs: []string{"u1", "u2", "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, userIDs(out.Recipients))
	for _, r := range out.Recipients {
		if r.UserID == "u1" {
			assert.Equal(t, models.ResponseDeclined, r.Response)
		} else {
			assert.Equal(t, models.ResponseNone, r.Response)
		}
	}
}

func TestEvaluate_NoFilterNoRecipients(t *testing.T) {
	att := &fakeAttendance{}
	att.add("u1", models.ResponseAccepted, time.Now())
	e := NewEvaluator(att, newFakeRoster(), nil)
	out, err := e.Evaluate(context.Background(), EvalRequest{Event: &models.Event{ID: uuid.New()}})
	require.NoError(t, err)
	assert.Empty(t, out.Recipients)
}
