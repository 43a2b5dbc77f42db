// Package reminders schedules and stores the at-most-once reminder jobs of events.
package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squadron-ops/eventbot/internal/models"
)

const jobColumns = `id, event_id, type, fire_at, sent, filter, created_at`

// Repository handles reminder_jobs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a reminders repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanJob(row pgx.Row) (models.ReminderJob, error) {
	var j models.ReminderJob
	var typ string
	var filter []byte
	if err := row.Scan(&j.ID, &j.EventID, &typ, &j.FireAt, &j.Sent, &filter, &j.CreatedAt); err != nil {
		return j, err
	}
	j.Type = models.ReminderType(typ)
	if len(filter) > 0 {
		if err := json.Unmarshal(filter, &j.Filter); err != nil {
			return j, fmt.Errorf("decode filter: %w", err)
		}
	}
	return j, nil
}

func (r *Repository) list(ctx context.Context, q string, args ...interface{}) ([]models.ReminderJob, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ReminderJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// Create inserts a pending job.
func (r *Repository) Create(ctx context.Context, j *models.ReminderJob) error {
	filter, err := json.Marshal(j.Filter)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	const q = `INSERT INTO reminder_jobs (id, event_id, type, fire_at, sent, filter)
		VALUES (gen_random_uuid(), $1, $2, $3, FALSE, $4) RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, j.EventID, string(j.Type), j.FireAt, filter).Scan(&j.ID, &j.CreatedAt)
}

// Get returns a job by id, or nil.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.ReminderJob, error) {
	j, err := scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM reminder_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListForEvent returns all jobs of an event, sent or not.
func (r *Repository) ListForEvent(ctx context.Context, eventID uuid.UUID) ([]models.ReminderJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM reminder_jobs WHERE event_id = $1 ORDER BY fire_at`, eventID)
}

// ListDue returns unsent jobs whose fire time has passed.
func (r *Repository) ListDue(ctx context.Context, now time.Time) ([]models.ReminderJob, error) {
	return r.list(ctx, `SELECT `+jobColumns+` FROM reminder_jobs WHERE sent = FALSE AND fire_at <= $1 ORDER BY fire_at`, now)
}

// MarkSent flips a pending job to sent. It reports false if the job was already sent or gone.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE reminder_jobs SET sent = TRUE WHERE id = $1 AND sent = FALSE`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteUnsent removes every pending job of an event.
func (r *Repository) DeleteUnsent(ctx context.Context, eventID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reminder_jobs WHERE event_id = $1 AND sent = FALSE`, eventID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
