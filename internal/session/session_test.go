package session

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvollmer/mediadmin/internal/api"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	storage, err := OpenStorage(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	return storage
}

func testIdentity() Identity {
	return Identity{Name: "Ada", Role: "admin", Email: "a@b.c", AvatarURL: "http://x/ada.png"}
}

func TestStore_SetCredentialsThenRestore(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	store := NewStore(storage, slog.Default())
	require.NoError(t, store.SetCredentials(ctx, "tok-1", testIdentity()))
	assert.True(t, store.IsAuthenticated())

	// A second store over the same storage models a fresh process.
	fresh := NewStore(storage, slog.Default())
	fresh.Restore(ctx)

	assert.True(t, fresh.IsAuthenticated())
	require.NotNil(t, fresh.Identity())
	assert.Equal(t, testIdentity(), *fresh.Identity())

	tok, err := fresh.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestStore_RestoreSurvivesProcessRestart(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "session.db")

	storage, err := OpenStorage(dbPath, slog.Default())
	require.NoError(t, err)

	store := NewStore(storage, slog.Default())
	require.NoError(t, store.SetCredentials(ctx, "tok-1", testIdentity()))
	require.NoError(t, storage.Close())

	reopened, err := OpenStorage(dbPath, slog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	fresh := NewStore(reopened, slog.Default())
	fresh.Restore(ctx)

	assert.True(t, fresh.IsAuthenticated())
	assert.Equal(t, "a@b.c", fresh.Identity().Email)
}

func TestStore_AuthenticationFollowsLastCall(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	store := NewStore(storage, slog.Default())

	assert.False(t, store.IsAuthenticated())

	require.NoError(t, store.SetCredentials(ctx, "t1", testIdentity()))
	assert.True(t, store.IsAuthenticated())

	require.NoError(t, store.Logout(ctx))
	assert.False(t, store.IsAuthenticated())

	require.NoError(t, store.SetCredentials(ctx, "t2", testIdentity()))
	assert.True(t, store.IsAuthenticated())

	// Restore in a fresh store reproduces the final state.
	fresh := NewStore(storage, slog.Default())
	fresh.Restore(ctx)
	assert.True(t, fresh.IsAuthenticated())
}

func TestStore_LogoutIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewStore(newTestStorage(t), slog.Default())

	require.NoError(t, store.Logout(ctx))
	require.NoError(t, store.Logout(ctx))
	assert.False(t, store.IsAuthenticated())
}

func TestStore_RestoreMalformedIdentity(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)

	require.NoError(t, storage.Set(ctx, TokenKey, "tok-1"))
	require.NoError(t, storage.Set(ctx, IdentityKey, "{not json"))

	store := NewStore(storage, slog.Default())
	store.Restore(ctx)

	// Malformed identity is treated as absent; the token still restores.
	assert.True(t, store.IsAuthenticated())
	assert.Nil(t, store.Identity())
}

func TestStore_RestoreEmptyStorage(t *testing.T) {
	store := NewStore(newTestStorage(t), slog.Default())
	store.Restore(context.Background())

	assert.False(t, store.IsAuthenticated())

	_, err := store.Token()
	assert.ErrorIs(t, err, api.ErrNotLoggedIn)
}

func TestStore_UpdateIdentityMerges(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	store := NewStore(storage, slog.Default())

	require.NoError(t, store.SetCredentials(ctx, "tok-1", testIdentity()))

	newEmail := "new@b.c"
	require.NoError(t, store.UpdateIdentity(ctx, IdentityPatch{Email: &newEmail}))

	got := store.Identity()
	require.NotNil(t, got)
	assert.Equal(t, "new@b.c", got.Email)
	assert.Equal(t, "Ada", got.Name) // untouched fields survive the merge

	// The merged record is re-persisted.
	fresh := NewStore(storage, slog.Default())
	fresh.Restore(ctx)
	assert.Equal(t, "new@b.c", fresh.Identity().Email)
}

func TestStore_UpdateIdentityNoopWhenLoggedOut(t *testing.T) {
	ctx := context.Background()
	storage := newTestStorage(t)
	store := NewStore(storage, slog.Default())

	name := "Ghost"
	require.NoError(t, store.UpdateIdentity(ctx, IdentityPatch{Name: &name}))

	_, ok, err := storage.Get(ctx, IdentityKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

// brokenStorage fails all writes, for persistence-error paths.
type brokenStorage struct {
	Storage
}

func (brokenStorage) Set(_ context.Context, _, _ string) error {
	return errors.New("disk full")
}

func (brokenStorage) Delete(_ context.Context, _ ...string) error {
	return errors.New("disk full")
}

func TestStore_SetCredentialsPersistenceError(t *testing.T) {
	ctx := context.Background()
	store := NewStore(brokenStorage{newTestStorage(t)}, slog.Default())

	err := store.SetCredentials(ctx, "tok-1", testIdentity())

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	// In-memory state still reflects the write's intent.
	assert.True(t, store.IsAuthenticated())
}

func TestStore_LogoutPersistenceErrorKeepsSession(t *testing.T) {
	ctx := context.Background()
	inner := newTestStorage(t)

	good := NewStore(inner, slog.Default())
	require.NoError(t, good.SetCredentials(ctx, "tok-1", testIdentity()))

	store := NewStore(brokenStorage{inner}, slog.Default())
	store.Restore(ctx)
	require.True(t, store.IsAuthenticated())

	err := store.Logout(ctx)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)

	// Durable delete failed, so the session is not considered cleared.
	assert.True(t, store.IsAuthenticated())
}
