package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/squadron-ops/eventbot/internal/attendance"
	"github.com/squadron-ops/eventbot/internal/models"
)

// AttendanceSource reads an event's attendance log.
type AttendanceSource interface {
	ListForEvent(ctx context.Context, eventID uuid.UUID, messageIDs []string) ([]models.AttendanceRecord, error)
}

// RosterSource answers roster membership and squadron assignment questions.
type RosterSource interface {
	SquadronSource
	SquadronMembers(ctx context.Context, squadronIDs []uuid.UUID) ([]models.RosterMember, error)
	Members(ctx context.Context, userIDs []string) (map[string]models.RosterMember, error)
	CurrentAssignments(ctx context.Context, userIDs []string) (map[string]models.SquadronAssignment, error)
}

// Recipient is a user to mention, with the response that selected them and their squadron.
type Recipient struct {
	UserID      string
	DisplayName string
	Response    models.Response
	SquadronID  uuid.UUID
}

// EvalRequest selects recipients either by filter or, when UserIDs is set, explicitly.
type EvalRequest struct {
	Event   *models.Event
	Filter  models.RecipientFilter
	UserIDs []string
}

// Evaluation is the routed recipient set. Unroutable users are active but have no squadron.
type Evaluation struct {
	Recipients []Recipient
	Unroutable []Recipient
	Inactive   int
}

// Evaluator computes reminder recipients from attendance and the roster.
type Evaluator struct {
	attendance AttendanceSource
	roster     RosterSource
	logger     *zap.Logger
}

// NewEvaluator creates a recipient evaluator.
func NewEvaluator(att AttendanceSource, roster RosterSource, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{attendance: att, roster: roster, logger: logger}
}

// Evaluate returns active, routable recipients for a reminder firing.
func (e *Evaluator) Evaluate(ctx context.Context, req EvalRequest) (*Evaluation, error) {
	ev := req.Event
	records, err := e.attendance.ListForEvent(ctx, ev.ID, ev.MessageIDs())
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}

	var candidates []Recipient
	if len(req.UserIDs) > 0 {
		candidates = explicitCandidates(req.UserIDs, attendance.LatestByUser(records))
	} else {
		for _, r := range attendance.Latest(records) {
			if req.Filter.Matches(r.Response) {
				candidates = append(candidates, Recipient{UserID: r.UserID, DisplayName: r.DisplayName, Response: r.Response})
			}
		}
		if req.Filter.NoResponse {
			silent, err := e.noResponse(ctx, ev, records)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, silent...)
		}
	}

	out := &Evaluation{}
	if len(candidates) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.UserID)
	}
	members, err := e.roster.Members(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("roster members: %w", err)
	}
	assignments, err := e.roster.CurrentAssignments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("squadron assignments: %w", err)
	}

	for _, c := range candidates {
		m, ok := members[c.UserID]
		if !ok || !m.Active {
			out.Inactive++
			continue
		}
		if c.DisplayName == "" {
			c.DisplayName = m.DisplayName
		}
		a, ok := assignments[c.UserID]
		if !ok {
			e.logger.Warn("active roster member has no squadron assignment, cannot route reminder",
				zap.String("event_id", ev.ID.String()),
				zap.String("user_id", c.UserID))
			out.Unroutable = append(out.Unroutable, c)
			continue
		}
		c.SquadronID = a.SquadronID
		out.Recipients = append(out.Recipients, c)
	}
	return out, nil
}

// noResponse returns active members of the participating squadrons with no record at all.
func (e *Evaluator) noResponse(ctx context.Context, ev *models.Event, records []models.AttendanceRecord) ([]Recipient, error) {
	if len(ev.SquadronIDs) == 0 {
		return nil, nil
	}
	members, err := e.roster.SquadronMembers(ctx, ev.SquadronIDs)
	if err != nil {
		return nil, fmt.Errorf("squadron members: %w", err)
	}
	responded := attendance.Responded(records)
	var out []Recipient
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if !m.Active {
			continue
		}
		if _, ok := responded[m.UserID]; ok {
			continue
		}
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		out = append(out, Recipient{UserID: m.UserID, DisplayName: m.DisplayName, Response: models.ResponseNone})
	}
	return out, nil
}

func explicitCandidates(userIDs []string, latest map[string]models.AttendanceRecord) []Recipient {
	seen := make(map[string]struct{}, len(userIDs))
	out := make([]Recipient, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		c := Recipient{UserID: id, Response: models.ResponseNone}
		if r, ok := latest[id]; ok {
			c.Response = r.Response
			c.DisplayName = r.DisplayName
		}
		out = append(out, c)
	}
	return out
}
