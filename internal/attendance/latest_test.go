package attendance

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-ops/eventbot/internal/models"
)

func rec(user string, resp models.Response, at time.Time) models.AttendanceRecord {
	return models.AttendanceRecord{ID: uuid.New(), UserID: user, DisplayName: user, Response: resp, CreatedAt: at}
}

func TestLatest_LastResponseWinsRegardlessOfOrder(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := rec("u1", models.ResponseAccepted, t0)
	b := rec("u1", models.ResponseTentative, t0.Add(time.Minute))
	c := rec("u1", models.ResponseDeclined, t0.Add(2*time.Minute))

	orders := [][]models.AttendanceRecord{
		{a, b, c}, {a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a},
	}
	for _, in := range orders {
		out := Latest(in)
		require.Len(t, out, 1)
		assert.Equal(t, models.ResponseDeclined, out[0].Response)
	}
}

func TestLatest_OnePerUserNewestFirst(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []models.AttendanceRecord{
		rec("u1", models.ResponseAccepted, t0),
		rec("u2", models.ResponseDeclined, t0.Add(time.Minute)),
		rec("u1", models.ResponseTentative, t0.Add(2*time.Minute)),
		rec("u3", models.ResponseAccepted, t0.Add(30*time.Second)),
	}
	out := Latest(in)
	require.Len(t, out, 3)
	assert.Equal(t, "u1", out[0].UserID)
	assert.Equal(t, models.ResponseTentative, out[0].Response)
	assert.Equal(t, "u2", out[1].UserID)
	assert.Equal(t, "u3", out[2].UserID)
}

func TestLatest_DoesNotMutateInput(t *testing.T) {
	t0 := time.Now()
	in := []models.AttendanceRecord{
		rec("u1", models.ResponseAccepted, t0),
		rec("u1", models.ResponseDeclined, t0.Add(time.Second)),
	}
	_ = Latest(in)
	assert.Equal(t, models.ResponseAccepted, in[0].Response)
}

func TestSummarize(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []models.AttendanceRecord{
		rec("u1", models.ResponseAccepted, t0),
		rec("u2", models.ResponseAccepted, t0.Add(time.Minute)),
		rec("u3", models.ResponseTentative, t0.Add(2*time.Minute)),
		rec("u1", models.ResponseDeclined, t0.Add(3*time.Minute)),
	}
	s := Summarize(&models.Event{ID: uuid.New()}, in)
	require.Len(t, s.Accepted, 1)
	assert.Equal(t, "u2", s.Accepted[0].UserID)
	require.Len(t, s.Tentative, 1)
	require.Len(t, s.Declined, 1)
	assert.Equal(t, "u1", s.Declined[0].UserID)
}

func TestResponded(t *testing.T) {
	in := []models.AttendanceRecord{
		rec("u1", models.ResponseDeclined, time.Now()),
		rec("u1", models.ResponseAccepted, time.Now()),
		rec("u2", models.ResponseTentative, time.Now()),
	}
	assert.Len(t, Responded(in), 2)
}
