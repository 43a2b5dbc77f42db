package dispatch

import "github.com/squadron-ops/eventbot/internal/models"

// MergePublicationState combines the freshly read row with local changes so a thread id
// resolved concurrently by another instance is never overwritten by a stale copy.
// A real thread id always wins; a local DISABLED only applies over NONE. Reminder message
// ids are appended without duplicates.
func MergePublicationState(latest, local models.Publication, added []string) models.Publication {
	out := latest
	if _, ok := latest.Thread.ID(); !ok {
		switch {
		case local.Thread.State() == models.ThreadStateCreated:
			out.Thread = local.Thread
		case local.Thread.IsDisabled() && latest.Thread.IsNone():
			out.Thread = local.Thread
		}
	}
	seen := make(map[string]struct{}, len(latest.ReminderMessageIDs)+len(added))
	ids := make([]string, 0, len(latest.ReminderMessageIDs)+len(added))
	for _, id := range append(append([]string{}, latest.ReminderMessageIDs...), added...) {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	out.ReminderMessageIDs = ids
	return out
}
