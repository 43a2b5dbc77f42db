package attendance

import (
	"sort"

	"github.com/squadron-ops/eventbot/internal/models"
)

// Latest reduces an append-only attendance log to one record per user: the most recent.
// Input order does not matter. Equal timestamps fall back to the record id so the result
// is deterministic. The output is sorted newest first.
func Latest(records []models.AttendanceRecord) []models.AttendanceRecord {
	sorted := make([]models.AttendanceRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID.String() > sorted[j].ID.String()
	})
	seen := make(map[string]struct{}, len(sorted))
	out := make([]models.AttendanceRecord, 0, len(sorted))
	for _, r := range sorted {
		if _, ok := seen[r.UserID]; ok {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, r)
	}
	return out
}

// LatestByUser is Latest keyed by user id.
func LatestByUser(records []models.AttendanceRecord) map[string]models.AttendanceRecord {
	latest := Latest(records)
	out := make(map[string]models.AttendanceRecord, len(latest))
	for _, r := range latest {
		out[r.UserID] = r
	}
	return out
}

// Responded returns every user with at least one record, whatever the response.
func Responded(records []models.AttendanceRecord) map[string]struct{} {
	out := make(map[string]struct{}, len(records))
	for _, r := range records {
		out[r.UserID] = struct{}{}
	}
	return out
}

// Summarize buckets the latest response per user. Within a bucket, earliest responders come first.
func Summarize(event *models.Event, records []models.AttendanceRecord) models.AttendanceSummary {
	s := models.AttendanceSummary{}
	if event != nil {
		s.EventID = event.ID
	}
	latest := Latest(records)
	for i := len(latest) - 1; i >= 0; i-- {
		r := latest[i]
		switch r.Response {
		case models.ResponseAccepted:
			s.Accepted = append(s.Accepted, r)
		case models.ResponseTentative:
			s.Tentative = append(s.Tentative, r)
		case models.ResponseDeclined:
			s.Declined = append(s.Declined, r)
		}
	}
	return s
}
