// Package attendance stores button-press responses as an append-only log and reconciles them
// with the published event messages.
package attendance

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squadron-ops/eventbot/internal/models"
)

// Repository handles attendance_records persistence. Rows are only ever inserted.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends a response record.
func (r *Repository) Insert(ctx context.Context, rec *models.AttendanceRecord) error {
	const q = `INSERT INTO attendance_records (id, event_id, message_id, user_id, display_name, response, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, COALESCE($6, NOW()))
		RETURNING id, created_at`
	var at interface{}
	if !rec.CreatedAt.IsZero() {
		at = rec.CreatedAt
	}
	return r.pool.QueryRow(ctx, q, rec.EventID, rec.MessageID, rec.UserID, rec.DisplayName, string(rec.Response), at).
		Scan(&rec.ID, &rec.CreatedAt)
}

// ListForEvent returns every record for the event's publication messages, newest first.
func (r *Repository) ListForEvent(ctx context.Context, eventID uuid.UUID, messageIDs []string) ([]models.AttendanceRecord, error) {
	const q = `SELECT id, event_id, message_id, user_id, display_name, response, created_at
		FROM attendance_records
		WHERE event_id = $1 OR message_id = ANY($2)
		ORDER BY created_at DESC`
	if messageIDs == nil {
		messageIDs = []string{}
	}
	rows, err := r.pool.Query(ctx, q, eventID, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.AttendanceRecord
	for rows.Next() {
		var rec models.AttendanceRecord
		var resp string
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.MessageID, &rec.UserID, &rec.DisplayName, &resp, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Response = models.Response(resp)
		list = append(list, rec)
	}
	return list, rows.Err()
}
