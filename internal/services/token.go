package services

import (
	"context"

	"github.com/recallpro/auth/types"
)

// RefreshTokenRepository defines persistence operations for refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token types.RefreshToken) (types.RefreshToken, error)
	GetLiveByHash(ctx context.Context, tokenHash string) (types.RefreshToken, error)
	ListByUser(ctx context.Context, userID int64) ([]types.RefreshToken, error)
	List(ctx context.Context, offset, limit int, filter types.RefreshTokenFilter) ([]types.RefreshToken, int, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// TokenService encapsulates refresh token use-cases of the credential store.
type TokenService struct {
	repo RefreshTokenRepository
}

func NewTokenService(repo RefreshTokenRepository) *TokenService {
	return &TokenService{repo: repo}
}

func (s *TokenService) Create(ctx context.Context, token types.RefreshToken) (types.RefreshToken, error) {
	token.ExpiresAt = token.ExpiresAt.UTC()
	return s.repo.Create(ctx, token)
}

// GetLive returns the token only when it is neither revoked nor expired.
func (s *TokenService) GetLive(ctx context.Context, tokenHash string) (types.RefreshToken, error) {
	return s.repo.GetLiveByHash(ctx, tokenHash)
}

func (s *TokenService) ListByUser(ctx context.Context, userID int64) ([]types.RefreshToken, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *TokenService) List(ctx context.Context, offset, limit int, filter types.RefreshTokenFilter) ([]types.RefreshToken, int, error) {
	return s.repo.List(ctx, offset, clampLimit(limit), filter)
}

func (s *TokenService) Revoke(ctx context.Context, tokenHash string) error {
	return s.repo.Revoke(ctx, tokenHash)
}

func (s *TokenService) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	return s.repo.RevokeAllForUser(ctx, userID)
}

func (s *TokenService) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx)
}
