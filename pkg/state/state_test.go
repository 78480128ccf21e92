package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecords(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	defer store.Close()

	_, found, err := store.Get("//:docs")
	require.NoError(t, err)
	assert.False(t, found)

	record := Record{
		Fingerprint: "abc",
		Outputs:     []string{"_build/docs/index.html"},
		Updated:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put("//:docs", record))

	loaded, found, err := store.Get("//:docs")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record.Fingerprint, loaded.Fingerprint)
	assert.Equal(t, record.Outputs, loaded.Outputs)
	assert.True(t, record.Updated.Equal(loaded.Updated))

	labels, err := store.Labels()
	require.NoError(t, err)
	assert.Equal(t, []string{"//:docs"}, labels)

	require.NoError(t, store.Forget("//:docs"))
	_, found, err = store.Get("//:docs")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Put("//src:links", Record{Fingerprint: "1"}))
	require.NoError(t, store.SaveOptions(map[string]string{"release": "true"}))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()

	record, found, err := store.Get("//src:links")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "1", record.Fingerprint)

	options, err := store.Options()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"release": "true"}, options)
}

func TestOptionsDefaultEmpty(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	options, err := store.Options()
	require.NoError(t, err)
	assert.Empty(t, options)
}
