package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/types"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	store, err := NewSQLStore(config.DatabaseConfig{
		Driver: "sqlite",
		Name:   ":memory:",
	}, time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLStore_SaveAndGet(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	original := testSession("s1", types.PhaseImplementation)
	require.NoError(t, store.Save(ctx, original))

	loaded, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.Phase, loaded.Phase)
	assert.Equal(t, "builder", loaded.ActiveWorker())
}

func TestSQLStore_SaveIsUpsert(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	session := testSession("s1", types.PhasePlanning)
	require.NoError(t, store.Save(ctx, session))

	session.Phase = types.PhaseValidation
	require.NoError(t, store.Save(ctx, session))

	loaded, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseValidation, loaded.Phase)
}

func TestSQLStore_GetMissing(t *testing.T) {
	store := newTestSQLStore(t)

	_, err := store.Get(context.Background(), "missing")
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}

func TestSQLStore_ListActiveExcludesTerminal(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("active-1", types.PhasePlanning)))
	require.NoError(t, store.Save(ctx, testSession("done", types.PhaseCompleted)))

	active, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active-1", active[0].ID)
}

func TestSQLStore_Delete(t *testing.T) {
	store := newTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("s1", types.PhasePlanning)))
	require.NoError(t, store.Delete(ctx, "s1"))

	_, err := store.Get(ctx, "s1")
	assert.Equal(t, types.ErrSessionNotFound, types.GetErrorCode(err))
}

func TestSQLStore_RejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLStore(config.DatabaseConfig{Driver: "oracle"}, time.Hour)
	require.Error(t, err)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}
