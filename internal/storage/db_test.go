package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailcrm/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertAndListRuns(t *testing.T) {
	db := openTestDB(t)

	failedID, err := db.InsertRun(internal.RunRecord{TraceID: "t1", Trigger: "http", Error: "crm unavailable", DurationMs: 12})
	require.NoError(t, err)

	okID, err := db.InsertRun(internal.RunRecord{
		TraceID:         "t2",
		Trigger:         "listener",
		Success:         true,
		MessageID:       "m1",
		HeaderCode:      "KF2026-031",
		ProductsCreated: 2,
		SkippedRows:     1,
		Products: []internal.CreatedProduct{
			{ID: 1001, Number: 1, Name: "Valve A", Code: "KF2026-031"},
			{ID: 1002, Number: 2, Name: "Valve B", Code: "KF2026-031"},
		},
	})
	require.NoError(t, err)
	assert.Greater(t, okID, failedID)

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, okID, runs[0].ID)
	assert.True(t, runs[0].Success)
	assert.Equal(t, "m1", runs[0].MessageID)
	assert.Equal(t, "KF2026-031", runs[0].HeaderCode)
	assert.Equal(t, 2, runs[0].ProductsCreated)
	assert.NotEmpty(t, runs[0].CreatedAt)

	assert.False(t, runs[1].Success)
	assert.Equal(t, "crm unavailable", runs[1].Error)
	assert.Empty(t, runs[1].MessageID)

	products, err := db.ListRunProducts(okID)
	require.NoError(t, err)
	assert.Equal(t, []internal.CreatedProduct{
		{ID: 1001, Number: 1, Name: "Valve A", Code: "KF2026-031"},
		{ID: 1002, Number: 2, Name: "Valve B", Code: "KF2026-031"},
	}, products)
}

func TestListRunsLimit(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 3; i++ {
		_, err := db.InsertRun(internal.RunRecord{TraceID: "t", Trigger: "cli", Success: true})
		require.NoError(t, err)
	}
	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)

	v, err := db.GetMetadata("journal.last_success_at")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, db.SetMetadata("journal.last_success_at", "a"))
	require.NoError(t, db.SetMetadata("journal.last_success_at", "b"))
	v, err = db.GetMetadata("journal.last_success_at")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "b", *v)
}
