package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending(t *testing.T) {
	got := pending([]string{"002_threads.sql", "001_schema.sql", "003_archive.sql"}, []string{"001_schema.sql"})
	assert.Equal(t, []string{"002_threads.sql", "003_archive.sql"}, got)
	assert.Empty(t, pending([]string{"001_schema.sql"}, []string{"001_schema.sql"}))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	schema, err := migrationsFS.ReadFile("migrations/001_schema.sql")
	require.NoError(t, err)
	for _, table := range []string{"events", "event_publications", "reminder_jobs", "attendance_records", "scheduled_publications"} {
		assert.Contains(t, string(schema), table)
	}
}
