package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callwarden/callwarden/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func newSession(id string) *model.Session {
	return &model.Session{
		ID:        id,
		OwnerID:   "owner-1",
		Status:    model.SessionRecording,
		StartedAt: time.Now(),
	}
}

func TestNewSQLiteStorageValidation(t *testing.T) {
	_, err := NewSQLiteStorage("")
	assert.Error(t, err)
}

func TestMigrate(t *testing.T) {
	store := newTestStorage(t)

	version, err := store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	// Re-running is a no-op.
	require.NoError(t, store.Migrate(context.Background()))

	version, err = store.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestValidateContext(t *testing.T) {
	store := newTestStorage(t)

	//nolint:staticcheck // Deliberately nil to exercise validation.
	_, err := store.GetSession(nil, "session-1")
	assert.ErrorIs(t, err, ErrNilContext)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.GetSession(canceled, "session-1")
	assert.Error(t, err)
}
