package store

import (
	"context"
	"testing"
	"time"

	"github.com/recallpro/auth/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryDB(t *testing.T) (*MemoryDB, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := NewMemoryDB()
	db.SetClock(func() time.Time { return now })
	return db, &now
}

func TestMemoryUsers_Uniqueness(t *testing.T) {
	db, _ := newTestMemoryDB(t)
	users := db.Users()
	ctx := context.Background()

	alice, err := users.Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.ID)
	assert.True(t, alice.IsActive)

	_, err = users.Create(ctx, types.User{Username: "alice", Email: "other@x.com", PasswordHash: "h"})
	assert.EqualError(t, err, "username already exists")

	_, err = users.Create(ctx, types.User{Username: "alice2", Email: "a@x.com", PasswordHash: "h"})
	assert.EqualError(t, err, "email already exists")
	assert.ErrorIs(t, err, ErrConflict)

	bob, err := users.Create(ctx, types.User{Username: "bob", Email: "b@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	taken := "alice"
	_, err = users.Update(ctx, bob.ID, types.UserUpdate{Username: &taken})
	assert.ErrorIs(t, err, ErrConflict)

	unchanged, err := users.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", unchanged.Username)
	assert.Nil(t, unchanged.UpdatedAt)
}

func TestMemoryUsers_UpdateStampsUpdatedAt(t *testing.T) {
	db, now := newTestMemoryDB(t)
	users := db.Users()
	ctx := context.Background()

	user, err := users.Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	*now = now.Add(time.Minute)
	inactive := false
	updated, err := users.Update(ctx, user.ID, types.UserUpdate{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "alice", updated.Username)
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, *now, *updated.UpdatedAt)

	_, err = users.Update(ctx, 99, types.UserUpdate{IsActive: &inactive})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUsers_ListSearchAndPaging(t *testing.T) {
	db, _ := newTestMemoryDB(t)
	users := db.Users()
	ctx := context.Background()

	for _, name := range []string{"alice", "alina", "bob"} {
		_, err := users.Create(ctx, types.User{Username: name, Email: name + "@x.com", PasswordHash: "h"})
		require.NoError(t, err)
	}

	page, total, err := users.List(ctx, 0, 10, "ALI")
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 2)
	assert.Equal(t, "alice", page[0].Username)

	page, total, err = users.List(ctx, 2, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "bob", page[0].Username)

	page, _, err = users.List(ctx, 10, 2, "")
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMemoryRefreshTokens_Liveness(t *testing.T) {
	db, now := newTestMemoryDB(t)
	ctx := context.Background()

	user, err := db.Users().Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	tokens := db.RefreshTokens()
	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "live", UserID: user.ID, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "revoked", UserID: user.ID, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, tokens.Revoke(ctx, "revoked"))

	_, err = tokens.GetLiveByHash(ctx, "live")
	require.NoError(t, err)
	_, err = tokens.GetLiveByHash(ctx, "revoked")
	assert.ErrorIs(t, err, ErrNotFound)

	*now = now.Add(time.Hour)
	_, err = tokens.GetLiveByHash(ctx, "live")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRefreshTokens_CreateRules(t *testing.T) {
	db, now := newTestMemoryDB(t)
	ctx := context.Background()
	tokens := db.RefreshTokens()

	_, err := tokens.Create(ctx, types.RefreshToken{TokenHash: "h", UserID: 7, ExpiresAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidReference)

	user, err := db.Users().Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "h", UserID: user.ID, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "h", UserID: user.ID, ExpiresAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, ErrConflict)

	assert.ErrorIs(t, tokens.Revoke(ctx, "unknown"), ErrNotFound)
}

func TestMemoryRefreshTokens_RevokeAllAndCascade(t *testing.T) {
	db, now := newTestMemoryDB(t)
	ctx := context.Background()
	users := db.Users()
	tokens := db.RefreshTokens()

	alice, err := users.Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	bob, err := users.Create(ctx, types.User{Username: "bob", Email: "b@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	for _, hash := range []string{"a1", "a2", "a3"} {
		_, err := tokens.Create(ctx, types.RefreshToken{TokenHash: hash, UserID: alice.ID, ExpiresAt: now.Add(time.Hour)})
		require.NoError(t, err)
	}
	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "b1", UserID: bob.ID, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, tokens.Revoke(ctx, "a1"))

	count, err := tokens.RevokeAllForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = tokens.RevokeAllForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = tokens.GetLiveByHash(ctx, "b1")
	require.NoError(t, err)

	require.NoError(t, users.Delete(ctx, bob.ID))
	remaining, err := tokens.ListByUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
	assert.ErrorIs(t, users.Delete(ctx, bob.ID), ErrNotFound)
}

func TestMemoryRefreshTokens_DeleteExpired(t *testing.T) {
	db, now := newTestMemoryDB(t)
	ctx := context.Background()
	tokens := db.RefreshTokens()

	user, err := db.Users().Create(ctx, types.User{Username: "alice", Email: "a@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "expired", UserID: user.ID, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "expired-revoked", UserID: user.ID, ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, tokens.Revoke(ctx, "expired-revoked"))
	_, err = tokens.Create(ctx, types.RefreshToken{TokenHash: "revoked", UserID: user.ID, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, tokens.Revoke(ctx, "revoked"))

	count, err := tokens.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	remaining, err := tokens.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "revoked", remaining[0].TokenHash)
	assert.True(t, remaining[0].IsRevoked)

	revoked := true
	listed, total, err := tokens.List(ctx, 0, 10, types.RefreshTokenFilter{IsRevoked: &revoked})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, listed, 1)
}
