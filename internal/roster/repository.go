// Package roster reads squadrons, roster membership and squadron assignments.
package roster

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squadron-ops/eventbot/internal/models"
)

// Repository handles squadron and roster persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a roster repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Squadrons returns the squadrons with the given ids, in the order requested.
func (r *Repository) Squadrons(ctx context.Context, ids []uuid.UUID) ([]models.Squadron, error) {
	const q = `SELECT id, name, guild_id, channel_id, use_threads, thread_archive_minutes
		FROM squadrons WHERE id = ANY($1)`
	rows, err := r.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[uuid.UUID]models.Squadron, len(ids))
	for rows.Next() {
		var s models.Squadron
		if err := rows.Scan(&s.ID, &s.Name, &s.GuildID, &s.ChannelID, &s.UseThreads, &s.ThreadArchiveMinutes); err != nil {
			return nil, err
		}
		byID[s.ID] = s
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	list := make([]models.Squadron, 0, len(byID))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			list = append(list, s)
		}
	}
	return list, nil
}

// SquadronMembers returns everyone currently assigned to one of the squadrons, active or not.
func (r *Repository) SquadronMembers(ctx context.Context, squadronIDs []uuid.UUID) ([]models.RosterMember, error) {
	const q = `SELECT DISTINCT m.user_id, m.display_name, s.name, s.is_active
		FROM squadron_assignments a
		JOIN roster_members m ON m.user_id = a.user_id
		JOIN roster_statuses s ON s.id = m.status_id
		WHERE a.squadron_id = ANY($1) AND (a.ended_at IS NULL OR a.ended_at > NOW())
		ORDER BY m.user_id`
	rows, err := r.pool.Query(ctx, q, squadronIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RosterMember
	for rows.Next() {
		var m models.RosterMember
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.StatusName, &m.Active); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// Members returns roster entries for the given users keyed by user id. Unknown users are absent.
func (r *Repository) Members(ctx context.Context, userIDs []string) (map[string]models.RosterMember, error) {
	const q = `SELECT m.user_id, m.display_name, s.name, s.is_active
		FROM roster_members m
		JOIN roster_statuses s ON s.id = m.status_id
		WHERE m.user_id = ANY($1)`
	rows, err := r.pool.Query(ctx, q, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]models.RosterMember, len(userIDs))
	for rows.Next() {
		var m models.RosterMember
		if err := rows.Scan(&m.UserID, &m.DisplayName, &m.StatusName, &m.Active); err != nil {
			return nil, err
		}
		out[m.UserID] = m
	}
	return out, rows.Err()
}

// CurrentAssignments returns each user's most recent non-ended squadron assignment.
func (r *Repository) CurrentAssignments(ctx context.Context, userIDs []string) (map[string]models.SquadronAssignment, error) {
	const q = `SELECT DISTINCT ON (user_id) user_id, squadron_id, started_at, ended_at
		FROM squadron_assignments
		WHERE user_id = ANY($1) AND (ended_at IS NULL OR ended_at > NOW())
		ORDER BY user_id, started_at DESC`
	rows, err := r.pool.Query(ctx, q, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]models.SquadronAssignment, len(userIDs))
	for rows.Next() {
		var a models.SquadronAssignment
		if err := rows.Scan(&a.UserID, &a.SquadronID, &a.StartedAt, &a.EndedAt); err != nil {
			return nil, err
		}
		out[a.UserID] = a
	}
	return out, rows.Err()
}
