// Package db tests for database migration management.
package db

import (
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"V1__widgets.up.sql":   {Data: []byte("CREATE TABLE widgets (id TEXT PRIMARY KEY);")},
		"V1__widgets.down.sql": {Data: []byte("DROP TABLE widgets;")},
		"V2__gadgets.up.sql":   {Data: []byte("CREATE TABLE gadgets (id TEXT PRIMARY KEY);")},
		"V2__gadgets.down.sql": {Data: []byte("DROP TABLE gadgets;")},
		"README.md":            {Data: []byte("ignored")},
		"Vx__bad.up.sql":       {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n))
	return n == 1
}

// TestCurrentVersion_beforeInitialize verifies querying fails without the table.
func TestCurrentVersion_beforeInitialize(t *testing.T) {
	m := NewMigrator(openMemory(t), testMigrations())
	_, err := m.CurrentVersion()
	assert.Error(t, err)
}

// TestUp verifies migrations apply in order and are recorded.
func TestUp(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, testMigrations())
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.True(t, tableExists(t, db, "widgets"))
	assert.True(t, tableExists(t, db, "gadgets"))

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "widgets", applied[0].Description)
	assert.Len(t, applied[0].Checksum, 64)

	// Running again is a no-op.
	require.NoError(t, m.Up())
}

// TestUp_modifiedMigration verifies a changed applied file is rejected.
func TestUp_modifiedMigration(t *testing.T) {
	db := openMemory(t)
	files := testMigrations()
	m := NewMigrator(db, files)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	files["V1__widgets.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE widgets (id INTEGER);")}
	err := NewMigrator(db, files).Up()
	assert.ErrorContains(t, err, "V1 was modified")
}

// TestDown verifies the latest migration is rolled back.
func TestDown(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, testMigrations())
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	v, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.False(t, tableExists(t, db, "gadgets"))

	require.NoError(t, m.Down())
	assert.Error(t, m.Down(), "nothing left to roll back")
}

// TestEmbeddedMigrations verifies the shipped schema creates the queue table.
func TestEmbeddedMigrations(t *testing.T) {
	db := openMemory(t)
	m := NewMigrator(db, EmbeddedMigrations())
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())
	assert.True(t, tableExists(t, db, "queued_submissions"))

	_, err := db.Exec(`INSERT INTO queued_submissions (id, submission_id, response_data, queued_at, retry_count)
		VALUES ('a', 'sub-1', '{}', 1, -1)`)
	assert.Error(t, err, "negative retry_count must violate the CHECK constraint")
}

// TestParseVersion verifies migration filename parsing.
func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		ok      bool
	}{
		{"V1__init.up.sql", 1, true},
		{"V12__add_index.up.sql", 12, true},
		{"V1__init.down.sql", 0, false},
		{"V0__zero.up.sql", 0, false},
		{"V1.up.sql", 0, false},
		{"V1__.up.sql", 0, false},
	}
	for _, tt := range tests {
		v, ok := parseVersion(tt.name, ".up.sql")
		assert.Equal(t, tt.ok, ok, tt.name)
		assert.Equal(t, tt.version, v, tt.name)
	}
}
