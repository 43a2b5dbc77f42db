// Package events owns events and their publications: persistence, the publish / edit /
// delete / manual-reminder service and the admin HTTP surface.
package events

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

const eventColumns = `id, title, description, starts_at, ends_at, status, squadron_ids, settings, created_by, finalized_at, created_at, updated_at`

const publicationColumns = `id, event_id, guild_id, channel_id, message_id, thread_id, thread_disabled, squadron_ids, reminder_message_ids, created_at`

// Repository handles event and publication persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an events repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var ev models.Event
	var status string
	var settings []byte
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.StartsAt, &ev.EndsAt, &status, &ev.SquadronIDs, &settings,
		&ev.CreatedBy, &ev.FinalizedAt, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	ev.Status = models.EventStatus(status)
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &ev.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &ev, nil
}

func scanPublication(row pgx.Row) (models.Publication, error) {
	var p models.Publication
	var threadID *string
	var disabled bool
	err := row.Scan(&p.ID, &p.EventID, &p.GuildID, &p.ChannelID, &p.MessageID, &threadID, &disabled, &p.SquadronIDs, &p.ReminderMessageIDs, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.Thread = models.ThreadFromColumns(threadID, disabled)
	return p, nil
}

// Get returns an event with its publications, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	ev, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ev.Publications, err = r.ListPublications(ctx, ev.ID); err != nil {
		return nil, err
	}
	return ev, nil
}

// GetByMessageID returns the event one of whose publications is messageID, or nil.
func (r *Repository) GetByMessageID(ctx context.Context, messageID string) (*models.Event, error) {
	if messageID == "" {
		return nil, nil
	}
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT event_id FROM event_publications WHERE message_id = $1 LIMIT 1`, messageID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// ListOpen returns every event that has not concluded, with publications.
func (r *Repository) ListOpen(ctx context.Context) ([]models.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE status <> 'concluded' ORDER BY starts_at`)
	if err != nil {
		return nil, err
	}
	var list []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, *ev)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].Publications, err = r.ListPublications(ctx, list[i].ID); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Update writes the editable fields of an event.
func (r *Repository) Update(ctx context.Context, ev *models.Event) error {
	settings, err := json.Marshal(ev.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	const q = `UPDATE events SET title = $1, description = $2, starts_at = $3, ends_at = $4, squadron_ids = $5, settings = $6, updated_at = NOW()
		WHERE id = $7 RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, ev.Title, ev.Description, ev.StartsAt, ev.EndsAt, ev.SquadronIDs, settings, ev.ID).Scan(&ev.UpdatedAt)
}

// Delete removes an event; publications, reminders and attendance cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	return err
}

// ListPublications returns an event's publications, oldest first.
func (r *Repository) ListPublications(ctx context.Context, eventID uuid.UUID) ([]models.Publication, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+publicationColumns+` FROM event_publications WHERE event_id = $1 ORDER BY created_at, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Publication
	for rows.Next() {
		p, err := scanPublication(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// InsertPublication records a posted announcement. It returns false when the event
// already has a publication for the same guild and channel.
func (r *Repository) InsertPublication(ctx context.Context, p *models.Publication) (bool, error) {
	threadID, disabled := p.Thread.Columns()
	if p.ReminderMessageIDs == nil {
		p.ReminderMessageIDs = []string{}
	}
	const q = `INSERT INTO event_publications (id, event_id, guild_id, channel_id, message_id, thread_id, thread_disabled, squadron_ids, reminder_message_ids)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id, guild_id, channel_id) DO NOTHING
		RETURNING id, created_at`
	err := r.pool.QueryRow(ctx, q, p.EventID, p.GuildID, p.ChannelID, p.MessageID, threadID, disabled, p.SquadronIDs, p.ReminderMessageIDs).
		Scan(&p.ID, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddPublicationSquadrons unions squadron ids into a publication's list.
func (r *Repository) AddPublicationSquadrons(ctx context.Context, publicationID uuid.UUID, squadronIDs []uuid.UUID) error {
	const q = `UPDATE event_publications SET squadron_ids = ARRAY(SELECT DISTINCT unnest(squadron_ids || $1::uuid[]))
		WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, squadronIDs, publicationID)
	return err
}

// SavePublicationState writes thread state and reminder message ids.
func (r *Repository) SavePublicationState(ctx context.Context, p *models.Publication) error {
	threadID, disabled := p.Thread.Columns()
	ids := p.ReminderMessageIDs
	if ids == nil {
		ids = []string{}
	}
	const q = `UPDATE event_publications SET thread_id = $1, thread_disabled = $2, reminder_message_ids = $3 WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, threadID, disabled, ids, p.ID)
	return err
}

// DuePublications returns scheduled publications whose time has come.
func (r *Repository) DuePublications(ctx context.Context, now time.Time) ([]models.ScheduledPublication, error) {
	const q = `SELECT id, event_id, publish_at, done_at, created_at FROM scheduled_publications
		WHERE done_at IS NULL AND publish_at <= $1 ORDER BY publish_at`
	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.ScheduledPublication
	for rows.Next() {
		var sp models.ScheduledPublication
		if err := rows.Scan(&sp.ID, &sp.EventID, &sp.PublishAt, &sp.DoneAt, &sp.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, sp)
	}
	return list, rows.Err()
}

// GetScheduledPublication returns one scheduled publication, or nil.
func (r *Repository) GetScheduledPublication(ctx context.Context, id uuid.UUID) (*models.ScheduledPublication, error) {
	const q = `SELECT id, event_id, publish_at, done_at, created_at FROM scheduled_publications WHERE id = $1`
	var sp models.ScheduledPublication
	err := r.pool.QueryRow(ctx, q, id).Scan(&sp.ID, &sp.EventID, &sp.PublishAt, &sp.DoneAt, &sp.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sp, nil
}

// SchedulePublication queues an announcement for later.
func (r *Repository) SchedulePublication(ctx context.Context, sp *models.ScheduledPublication) error {
	const q = `INSERT INTO scheduled_publications (id, event_id, publish_at) VALUES (gen_random_uuid(), $1, $2) RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, sp.EventID, sp.PublishAt).Scan(&sp.ID, &sp.CreatedAt)
}

// MarkPublicationDone completes a scheduled publication once.
func (r *Repository) MarkPublicationDone(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE scheduled_publications SET done_at = NOW() WHERE id = $1 AND done_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DueTransitions returns ids of events whose status lags behind the clock.
func (r *Repository) DueTransitions(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	const q = `SELECT id FROM events
		WHERE (status = 'scheduled' AND starts_at <= $1)
		   OR (status = 'active' AND COALESCE(ends_at, starts_at + $2::interval) <= $1)
		ORDER BY starts_at`
	return r.ids(ctx, q, now, intervalOf(models.DefaultEventDuration))
}

// SetStatus moves an event from one status to another; it reports false if the event
// was no longer in the expected status.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, from, to models.EventStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListUnfinalized returns concluded events that have not been finalized.
func (r *Repository) ListUnfinalized(ctx context.Context) ([]uuid.UUID, error) {
	return r.ids(ctx, `SELECT id FROM events WHERE status = 'concluded' AND finalized_at IS NULL ORDER BY starts_at`)
}

// MarkFinalized stamps finalized_at once.
func (r *Repository) MarkFinalized(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE events SET finalized_at = NOW() WHERE id = $1 AND finalized_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) ids(ctx context.Context, q string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		list = append(list, id)
	}
	return list, rows.Err()
}

func intervalOf(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d/time.Second))
}
