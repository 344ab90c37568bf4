package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/recallpro/auth/types"
)

const refreshTokenColumns = `id, token_hash, user_id, expires_at, created_at, is_revoked`

// RefreshTokenRepository handles persistence for refresh tokens.
// Liveness (not revoked and not expired) is always evaluated by the
// database clock at query time.
type RefreshTokenRepository struct {
	db *sql.DB
}

func NewRefreshTokenRepository(db *sql.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

func scanRefreshToken(row rowScanner) (types.RefreshToken, error) {
	var token types.RefreshToken
	err := row.Scan(
		&token.ID,
		&token.TokenHash,
		&token.UserID,
		&token.ExpiresAt,
		&token.CreatedAt,
		&token.IsRevoked,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.RefreshToken{}, ErrNotFound
		}
		return types.RefreshToken{}, err
	}
	return token, nil
}

func (r *RefreshTokenRepository) Create(ctx context.Context, token types.RefreshToken) (types.RefreshToken, error) {
	token.CreatedAt = time.Now().UTC()
	token.IsRevoked = false

	const query = `
		INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at, is_revoked)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		token.TokenHash,
		token.UserID,
		token.ExpiresAt,
		token.CreatedAt,
		token.IsRevoked,
	).Scan(&token.ID); err != nil {
		return types.RefreshToken{}, translateError(err)
	}
	return token, nil
}

// GetLiveByHash returns the token only if it is neither revoked nor expired.
func (r *RefreshTokenRepository) GetLiveByHash(ctx context.Context, tokenHash string) (types.RefreshToken, error) {
	const query = `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1 AND is_revoked = FALSE AND expires_at > NOW()`
	return scanRefreshToken(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *RefreshTokenRepository) ListByUser(ctx context.Context, userID int64) ([]types.RefreshToken, error) {
	const query = `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE user_id = $1
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tokens := make([]types.RefreshToken, 0)
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (r *RefreshTokenRepository) List(ctx context.Context, offset, limit int, filter types.RefreshTokenFilter) ([]types.RefreshToken, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}

	const where = `WHERE ($1::BIGINT IS NULL OR user_id = $1) AND ($2::BOOLEAN IS NULL OR is_revoked = $2)`

	const countQuery = `SELECT COUNT(1) FROM refresh_tokens ` + where
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, filter.UserID, filter.IsRevoked).Scan(&total); err != nil {
		return nil, 0, err
	}

	const listQuery = `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens ` + where + `
		ORDER BY id
		OFFSET $3 LIMIT $4`
	rows, err := r.db.QueryContext(ctx, listQuery, filter.UserID, filter.IsRevoked, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tokens := make([]types.RefreshToken, 0, limit)
	for rows.Next() {
		token, err := scanRefreshToken(rows)
		if err != nil {
			return nil, 0, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return tokens, total, nil
}

// Revoke marks the token as revoked. Revoking an already revoked token
// succeeds; an unknown hash yields ErrNotFound.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string) error {
	const query = `UPDATE refresh_tokens SET is_revoked = TRUE WHERE token_hash = $1`
	result, err := r.db.ExecContext(ctx, query, tokenHash)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllForUser revokes every non-revoked token of the user in a single
// statement and returns how many rows changed.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	const query = `UPDATE refresh_tokens SET is_revoked = TRUE WHERE user_id = $1 AND is_revoked = FALSE`
	result, err := r.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpired removes every token whose expiry has passed, revoked or not.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at <= NOW()`
	result, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
