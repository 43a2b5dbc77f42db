package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squadron-ops/eventbot/internal/attendance"
	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/models"
	"github.com/squadron-ops/eventbot/pkg/queue"
)

type stubPresses struct {
	got []chat.Press
	err error
}

func (s *stubPresses) HandlePress(_ context.Context, p chat.Press) (*attendance.Result, error) {
	s.got = append(s.got, p)
	if s.err != nil {
		return nil, s.err
	}
	return &attendance.Result{Record: models.AttendanceRecord{EventID: uuid.New(), UserID: p.UserID, Response: models.ResponseAccepted}}, nil
}

// sliceQueue hands out jobs then cancels the run.
type sliceQueue struct {
	jobs    []*queue.Job
	retried []*queue.Job
	cancel  context.CancelFunc
}

func (q *sliceQueue) Dequeue(_ context.Context) (*queue.Job, error) {
	if len(q.jobs) == 0 {
		q.cancel()
		return nil, nil
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, nil
}

func (q *sliceQueue) Retry(_ context.Context, job *queue.Job, _ error) error {
	q.retried = append(q.retried, job)
	return nil
}

func pressJob(t *testing.T, p chat.Press) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(p)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.NewString(), Type: queue.JobTypeAttendance, Payload: payload}
}

func TestProcess_HandlesPress(t *testing.T) {
	presses := &stubPresses{}
	c := NewInteractionConsumer(nil, presses, nil)

	err := c.Process(context.Background(), pressJob(t, chat.Press{MessageID: "m1", UserID: "u1", Response: "accepted"}))
	require.NoError(t, err)
	require.Len(t, presses.got, 1)
	assert.Equal(t, "m1", presses.got[0].MessageID)
	assert.Equal(t, "u1", presses.got[0].UserID)
}

func TestProcess_DropsPermanentRejections(t *testing.T) {
	for _, cause := range []error{attendance.ErrUnknownMessage, attendance.ErrInvalidResponse, attendance.ErrEventClosed} {
		c := NewInteractionConsumer(nil, &stubPresses{err: cause}, nil)
		assert.NoError(t, c.Process(context.Background(), pressJob(t, chat.Press{MessageID: "m1", UserID: "u1"})), cause.Error())
	}
}

func TestProcess_ReturnsRetryableErrors(t *testing.T) {
	c := NewInteractionConsumer(nil, &stubPresses{err: errors.New("insert record: connection refused")}, nil)
	err := c.Process(context.Background(), pressJob(t, chat.Press{MessageID: "m1", UserID: "u1"}))
	assert.Error(t, err)
}

func TestProcess_DropsMalformedJobs(t *testing.T) {
	presses := &stubPresses{}
	c := NewInteractionConsumer(nil, presses, nil)
	assert.NoError(t, c.Process(context.Background(), &queue.Job{ID: "j1", Type: "unknown"}))
	assert.NoError(t, c.Process(context.Background(), &queue.Job{ID: "j2", Type: queue.JobTypeAttendance, Payload: []byte("{")}))
	assert.Empty(t, presses.got)
}

func TestRun_RetriesFailedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ok := pressJob(t, chat.Press{MessageID: "m1", UserID: "u1"})
	q := &sliceQueue{jobs: []*queue.Job{ok}, cancel: cancel}
	c := NewInteractionConsumer(q, &stubPresses{err: errors.New("timeout")}, nil)
	c.backoff = time.Millisecond

	c.Run(ctx)
	require.Len(t, q.retried, 1)
	assert.Equal(t, ok.ID, q.retried[0].ID)
}
