package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/recallpro/auth/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenRowColumns = []string{"id", "token_hash", "user_id", "expires_at", "created_at", "is_revoked"}

func TestRefreshTokenRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)INSERT INTO refresh_tokens \(token_hash, user_id, expires_at, created_at, is_revoked\).*RETURNING id`).
		WithArgs("abc", int64(1), expires, sqlmock.AnyArg(), false).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	token, err := repo.Create(context.Background(), types.RefreshToken{TokenHash: "abc", UserID: 1, ExpiresAt: expires})
	require.NoError(t, err)
	assert.Equal(t, int64(42), token.ID)
	assert.Equal(t, expires, token.ExpiresAt)
	assert.False(t, token.IsRevoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Create_UnknownUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery(`INSERT INTO refresh_tokens`).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "refresh_tokens_user_id_fkey"})

	_, err := repo.Create(context.Background(), types.RefreshToken{TokenHash: "abc", UserID: 404, ExpiresAt: time.Now()})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestRefreshTokenRepository_Create_DuplicateHash(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery(`INSERT INTO refresh_tokens`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "refresh_tokens_token_hash_key"})

	_, err := repo.Create(context.Background(), types.RefreshToken{TokenHash: "abc", UserID: 1, ExpiresAt: time.Now()})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "token", conflict.Field)
}

func TestRefreshTokenRepository_GetLiveByHash_AppliesLiveness(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	created := expires.Add(-7 * 24 * time.Hour)
	mock.ExpectQuery(`(?s)FROM refresh_tokens\s+WHERE token_hash = \$1 AND is_revoked = FALSE AND expires_at > NOW\(\)`).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).AddRow(int64(1), "abc", int64(9), expires, created, false))

	token, err := repo.GetLiveByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(9), token.UserID)
	assert.Equal(t, expires, token.ExpiresAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetLiveByHash_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectQuery(`FROM refresh_tokens`).WithArgs("gone").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetLiveByHash(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRefreshTokenRepository_ListByUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)FROM refresh_tokens\s+WHERE user_id = \$1\s+ORDER BY id`).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).
			AddRow(int64(1), "a", int64(2), now, now, false).
			AddRow(int64(2), "b", int64(2), now, now, true))

	tokens, err := repo.ListByUser(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.True(t, tokens[1].IsRevoked)
}

func TestRefreshTokenRepository_List_Filters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	userID := int64(2)
	revoked := true
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(1\) FROM refresh_tokens`).
		WithArgs(int64(2), true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`(?s)FROM refresh_tokens WHERE .*OFFSET \$3 LIMIT \$4`).
		WithArgs(int64(2), true, 0, 10).
		WillReturnRows(sqlmock.NewRows(tokenRowColumns).AddRow(int64(5), "x", int64(2), now, now, true))

	tokens, total, err := repo.List(context.Background(), 0, 10, types.RefreshTokenFilter{UserID: &userID, IsRevoked: &revoked})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, tokens, 1)
	assert.Equal(t, int64(5), tokens[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Revoke(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = TRUE WHERE token_hash = \$1`).
		WithArgs("abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = TRUE WHERE token_hash = \$1`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Revoke(context.Background(), "abc"))
	assert.ErrorIs(t, repo.Revoke(context.Background(), "missing"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeAllForUser_SingleStatement(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = \$1 AND is_revoked = FALSE`).
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 4))

	count, err := repo.RevokeAllForUser(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`DELETE FROM refresh_tokens WHERE expires_at <= NOW\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRefreshTokenRepository_DeleteExpired_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRefreshTokenRepository(db)

	mock.ExpectExec(`DELETE FROM refresh_tokens`).WillReturnError(errors.New("db down"))

	_, err := repo.DeleteExpired(context.Background())
	assert.EqualError(t, err, "db down")
}
