package types

import "time"

// RefreshToken is the persisted record of a refresh token issued at login.
// The raw token value is never stored; only its SHA-256 digest is.
type RefreshToken struct {
	// ID is the unique identifier of the record.
	ID int64 `json:"id" db:"id"`

	// TokenHash is the hex encoded SHA-256 digest of the raw token.
	TokenHash string `json:"token_hash" db:"token_hash"`

	// UserID references the owning user. Tokens are deleted with their user.
	UserID int64 `json:"user_id" db:"user_id"`

	// ExpiresAt is the absolute expiration time computed when the token was minted.
	ExpiresAt time.Time `json:"expires_at" db:"expires_at"`

	// CreatedAt is the timestamp when the record was inserted.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// IsRevoked is set once the token is revoked and never cleared.
	IsRevoked bool `json:"is_revoked" db:"is_revoked"`
}

// Live reports whether the token is neither revoked nor expired at now.
func (t RefreshToken) Live(now time.Time) bool {
	return !t.IsRevoked && t.ExpiresAt.After(now)
}

// RefreshTokenFilter narrows token listings. Nil fields do not filter.
type RefreshTokenFilter struct {
	UserID    *int64
	IsRevoked *bool
}
