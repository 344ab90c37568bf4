// Package auth implements signup, login, token refresh, logout and
// revocation on top of the credential store.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/recallpro/auth/config"
	"github.com/recallpro/auth/internal/apperr"
	"github.com/recallpro/auth/internal/storeclient"
	"github.com/recallpro/auth/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	TokenType = "bearer"

	minUsernameLen = 3
	maxUsernameLen = 50
	maxEmailLen    = 100
	minPasswordLen = 6
)

var (
	errInvalidCredentials = apperr.Authentication("invalid username or password")
	errInvalidToken       = apperr.Authentication("invalid token")
	errInvalidRefresh     = apperr.Authentication("invalid or expired refresh token")
)

// Engine is the auth service. It holds no per-user state; everything
// persistent lives behind the store client.
type Engine struct {
	store      storeclient.Client
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int
	dummyHash  string
	now        func() time.Time
	log        *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the clock used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine builds an engine. It fails when no signing secret is configured.
func NewEngine(client storeclient.Client, cfg config.AuthConfig, log *slog.Logger, opts ...Option) (*Engine, error) {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AccessTokenExpireMinutes <= 0 {
		return nil, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if cfg.RefreshTokenExpireDays <= 0 {
		return nil, errors.New("REFRESH_TOKEN_EXPIRE_DAYS must be positive")
	}

	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	e := &Engine{
		store:      client,
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  cfg.AccessTokenTTL(),
		refreshTTL: cfg.RefreshTokenTTL(),
		bcryptCost: cost,
		now:        time.Now,
		log:        log,
	}
	for _, opt := range opts {
		opt(e)
	}

	// Compared against when the username is unknown.
	dummy, err := hashPassword("recallpro-dummy-password", cost)
	if err != nil {
		return nil, err
	}
	e.dummyHash = dummy
	return e, nil
}

type SignupInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Username string
	Password string
}

// LoginResult carries a new session. RefreshToken is the raw token; only its
// hash is stored, so this is the one time it is available.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	User         types.User
}

type RefreshResult struct {
	AccessToken string
	TokenType   string
}

// Signup validates the input, hashes the password and creates the user.
// The store's unique constraints decide races between concurrent signups.
func (e *Engine) Signup(ctx context.Context, in SignupInput) (types.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := validateSignup(in); err != nil {
		return types.User{}, err
	}

	if _, err := e.store.GetUserByUsername(ctx, in.Username); err == nil {
		return types.User{}, apperr.Validation("username already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return types.User{}, err
	}
	if _, err := e.store.GetUserByEmail(ctx, in.Email); err == nil {
		return types.User{}, apperr.Validation("email already exists")
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return types.User{}, err
	}

	hashed, err := hashPassword(in.Password, e.bcryptCost)
	if err != nil {
		return types.User{}, apperr.Internal("hash password", err)
	}

	user, err := e.store.CreateUser(ctx, in.Username, in.Email, hashed)
	if err != nil {
		return types.User{}, err
	}

	e.log.InfoContext(ctx, "user signed up", "user_id", user.ID)
	return user, nil
}

// Login checks the credentials and opens a session. Unknown users, inactive
// users and wrong passwords are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return LoginResult{}, errInvalidCredentials
	}

	user, err := e.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			checkPassword(e.dummyHash, in.Password)
			return LoginResult{}, errInvalidCredentials
		}
		return LoginResult{}, err
	}

	if !checkPassword(user.PasswordHash, in.Password) || !user.IsActive {
		return LoginResult{}, errInvalidCredentials
	}

	now := e.now()
	accessToken, err := issueAccessToken(user.Username, user.ID, e.secret, now, e.accessTTL)
	if err != nil {
		return LoginResult{}, apperr.Internal("sign access token", err)
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return LoginResult{}, apperr.Internal("generate refresh token", err)
	}
	if _, err := e.store.CreateRefreshToken(ctx, HashToken(refreshToken), user.ID, now.Add(e.refreshTTL)); err != nil {
		return LoginResult{}, err
	}

	e.log.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    TokenType,
		User:         user,
	}, nil
}

// VerifyAccessToken checks signature and expiry. It never consults the store.
func (e *Engine) VerifyAccessToken(token string) (*Claims, error) {
	claims, err := parseAccessToken(token, e.secret, e.now)
	if err != nil {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Refresh mints a new access token for a live refresh token. The refresh
// token itself is not rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (RefreshResult, error) {
	if refreshToken == "" {
		return RefreshResult{}, errInvalidRefresh
	}

	record, err := e.store.VerifyRefreshToken(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return RefreshResult{}, errInvalidRefresh
		}
		return RefreshResult{}, err
	}

	user, err := e.store.GetUserByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return RefreshResult{}, errInvalidRefresh
		}
		return RefreshResult{}, err
	}
	if !user.IsActive {
		return RefreshResult{}, errInvalidRefresh
	}

	accessToken, err := issueAccessToken(user.Username, user.ID, e.secret, e.now(), e.accessTTL)
	if err != nil {
		return RefreshResult{}, apperr.Internal("sign access token", err)
	}
	return RefreshResult{AccessToken: accessToken, TokenType: TokenType}, nil
}

// Logout revokes the refresh token. Unknown tokens are not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	revoked, err := e.store.RevokeRefreshToken(ctx, HashToken(refreshToken))
	if err != nil {
		return err
	}
	e.log.DebugContext(ctx, "logout", "revoked", revoked)
	return nil
}

// RevokeAll revokes every live refresh token of the user and returns how
// many were revoked.
func (e *Engine) RevokeAll(ctx context.Context, userID int64) (int64, error) {
	count, err := e.store.RevokeUserTokens(ctx, userID)
	if err != nil {
		return 0, err
	}
	e.log.InfoContext(ctx, "revoked user sessions", "user_id", userID, "count", count)
	return count, nil
}

// Cleanup deletes expired refresh tokens and returns how many were removed.
func (e *Engine) Cleanup(ctx context.Context) (int64, error) {
	count, err := e.store.CleanupExpiredTokens(ctx)
	if err != nil {
		return 0, err
	}
	e.log.InfoContext(ctx, "expired refresh tokens deleted", "count", count)
	return count, nil
}

func validateSignup(in SignupInput) error {
	if n := utf8.RuneCountInString(in.Username); n < minUsernameLen || n > maxUsernameLen {
		return apperr.Validation("username must be between 3 and 50 characters")
	}
	if in.Email == "" || utf8.RuneCountInString(in.Email) > maxEmailLen {
		return apperr.Validation("invalid email address")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return apperr.Validation("invalid email address")
	}
	if utf8.RuneCountInString(in.Password) < minPasswordLen {
		return apperr.Validation("password must be at least 6 characters")
	}
	if len(in.Password) > maxPasswordBytes {
		return apperr.Validation("password must be at most 72 bytes")
	}
	return nil
}
