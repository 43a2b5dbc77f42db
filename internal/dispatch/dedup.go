package dispatch

import (
	"github.com/google/uuid"

	"github.com/squadron-ops/eventbot/internal/models"
)

// Target is one squadron's share of an outbound action, resolved to a destination.
type Target struct {
	SquadronID uuid.UUID
	GuildID    string
	ChannelID  string
	Recipients []Recipient
}

// Key returns the (guild, channel) destination.
func (t Target) Key() models.ChannelKey {
	return models.ChannelKey{GuildID: t.GuildID, ChannelID: t.ChannelID}
}

// MergedTarget is every target that shares one (guild, channel).
type MergedTarget struct {
	Key         models.ChannelKey
	SquadronIDs []uuid.UUID
	Entries     []Target
	Recipients  []Recipient
}

// UserIDs returns the merged recipients' ids in order.
func (m *MergedTarget) UserIDs() []string {
	ids := make([]string, 0, len(m.Recipients))
	for _, r := range m.Recipients {
		ids = append(ids, r.UserID)
	}
	return ids
}

// ChannelSet maps each distinct destination to its merged target, keeping first-seen order.
type ChannelSet struct {
	order []models.ChannelKey
	byKey map[models.ChannelKey]*MergedTarget
}

// Deduplicate collapses targets that resolve to the same (guild, channel). Squadron ids and
// recipients are unioned in insertion order. Destinations with no recipients are kept.
func Deduplicate(targets []Target) *ChannelSet {
	set := &ChannelSet{byKey: make(map[models.ChannelKey]*MergedTarget)}
	seenUser := make(map[models.ChannelKey]map[string]struct{})
	for _, t := range targets {
		key := t.Key()
		m, ok := set.byKey[key]
		if !ok {
			m = &MergedTarget{Key: key}
			set.byKey[key] = m
			set.order = append(set.order, key)
			seenUser[key] = make(map[string]struct{})
		}
		m.Entries = append(m.Entries, t)
		if !containsID(m.SquadronIDs, t.SquadronID) {
			m.SquadronIDs = append(m.SquadronIDs, t.SquadronID)
		}
		for _, r := range t.Recipients {
			if _, dup := seenUser[key][r.UserID]; dup {
				continue
			}
			seenUser[key][r.UserID] = struct{}{}
			m.Recipients = append(m.Recipients, r)
		}
	}
	return set
}

// Len returns the number of distinct destinations.
func (s *ChannelSet) Len() int { return len(s.order) }

// Keys returns destinations in first-seen order.
func (s *ChannelSet) Keys() []models.ChannelKey {
	out := make([]models.ChannelKey, len(s.order))
	copy(out, s.order)
	return out
}

// Get returns the merged target for a destination.
func (s *ChannelSet) Get(key models.ChannelKey) (*MergedTarget, bool) {
	m, ok := s.byKey[key]
	return m, ok
}

// All returns merged targets in first-seen order.
func (s *ChannelSet) All() []*MergedTarget {
	out := make([]*MergedTarget, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.byKey[k])
	}
	return out
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
