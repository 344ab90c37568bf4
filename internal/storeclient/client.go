// Package storeclient is the auth service's typed view of the credential store.
package storeclient

import (
	"context"
	"time"

	"github.com/recallpro/auth/types"
)

// Client performs credential store operations. Every error it returns is an
// *apperr.Error; lookups of absent records fail with apperr.ErrNotFound.
type Client interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (types.User, error)
	GetUserByID(ctx context.Context, id int64) (types.User, error)
	GetUserByUsername(ctx context.Context, username string) (types.User, error)
	GetUserByEmail(ctx context.Context, email string) (types.User, error)
	UpdateUser(ctx context.Context, id int64, update types.UserUpdate) (types.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) (types.RefreshToken, error)
	// VerifyRefreshToken returns the record only while it is live.
	VerifyRefreshToken(ctx context.Context, tokenHash string) (types.RefreshToken, error)
	// RevokeRefreshToken reports false when no record has the hash.
	RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error)
	RevokeUserTokens(ctx context.Context, userID int64) (int64, error)
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}
