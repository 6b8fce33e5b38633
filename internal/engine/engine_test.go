package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/callwarden/callwarden/internal/model"
	"github.com/callwarden/callwarden/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func createTestSession(t *testing.T, store *storage.SQLiteStorage, id, ownerID string, status model.SessionStatus) {
	t.Helper()
	require.NoError(t, store.CreateSession(context.Background(), &model.Session{
		ID:        id,
		OwnerID:   ownerID,
		Status:    status,
		StartedAt: time.Now(),
	}))
}

func createTestRule(t *testing.T, store *storage.SQLiteStorage, rule model.ComplianceRule) {
	t.Helper()
	require.NoError(t, store.CreateRule(context.Background(), &rule))
}
