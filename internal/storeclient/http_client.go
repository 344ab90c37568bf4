package storeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/recallpro/auth/config"
	"github.com/recallpro/auth/internal/apperr"
	"github.com/recallpro/auth/types"
)

const maxErrorBody = 64 << 10

// HTTPClient implements Client over the credential store's JSON API.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a client for cfg.BaseURL. If httpClient is nil, one
// with cfg.Timeout is created.
func NewHTTPClient(cfg config.StoreClientConfig, httpClient *http.Client, log *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		log:        log,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

type createUserBody struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

type createTokenBody struct {
	TokenHash string    `json:"token_hash"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type revokeTokenBody struct {
	TokenHash string `json:"token_hash"`
}

type revokeUserTokensBody struct {
	RevokedCount int64 `json:"revoked_count"`
}

type cleanupBody struct {
	DeletedCount int64 `json:"deleted_count"`
}

func (c *HTTPClient) CreateUser(ctx context.Context, username, email, passwordHash string) (types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodPost, "/users", createUserBody{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}, &user)
	return user, err
}

func (c *HTTPClient) GetUserByID(ctx context.Context, id int64) (types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodGet, "/users/"+strconv.FormatInt(id, 10), nil, &user)
	return user, err
}

func (c *HTTPClient) GetUserByUsername(ctx context.Context, username string) (types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodGet, "/users/search/by-username/"+url.PathEscape(username), nil, &user)
	return user, err
}

func (c *HTTPClient) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodGet, "/users/search/by-email/"+url.PathEscape(email), nil, &user)
	return user, err
}

func (c *HTTPClient) UpdateUser(ctx context.Context, id int64, update types.UserUpdate) (types.User, error) {
	var user types.User
	err := c.do(ctx, http.MethodPut, "/users/"+strconv.FormatInt(id, 10), update, &user)
	return user, err
}

func (c *HTTPClient) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, "/users/"+strconv.FormatInt(id, 10), nil, nil)
}

func (c *HTTPClient) CreateRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) (types.RefreshToken, error) {
	var token types.RefreshToken
	err := c.do(ctx, http.MethodPost, "/tokens", createTokenBody{
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: expiresAt.UTC(),
	}, &token)
	return token, err
}

func (c *HTTPClient) VerifyRefreshToken(ctx context.Context, tokenHash string) (types.RefreshToken, error) {
	var token types.RefreshToken
	err := c.do(ctx, http.MethodGet, "/tokens/verify/"+url.PathEscape(tokenHash), nil, &token)
	return token, err
}

func (c *HTTPClient) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	err := c.do(ctx, http.MethodPost, "/tokens/revoke", revokeTokenBody{TokenHash: tokenHash}, nil)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *HTTPClient) RevokeUserTokens(ctx context.Context, userID int64) (int64, error) {
	var body revokeUserTokensBody
	err := c.do(ctx, http.MethodPost, "/tokens/revoke-user/"+strconv.FormatInt(userID, 10), nil, &body)
	return body.RevokedCount, err
}

func (c *HTTPClient) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	var body cleanupBody
	err := c.do(ctx, http.MethodPost, "/tokens/cleanup", nil, &body)
	return body.DeletedCount, err
}

// do sends one request and decodes a 2xx body into out. Failures are mapped
// onto apperr kinds; nothing is retried.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return apperr.Internal("encode store request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apperr.Internal("build store request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := middleware.GetReqID(ctx); requestID != "" {
		req.Header.Set(middleware.RequestIDHeader, requestID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WarnContext(ctx, "credential store unreachable", "method", method, "path", path, "error", err)
		return apperr.Upstream("credential store unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperr.Internal("decode store response", fmt.Errorf("%s %s: %w", method, path, err))
		}
		return nil
	}

	detail := readErrorDetail(resp.Body)
	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		if detail == "" {
			detail = "invalid request"
		}
		return apperr.Validation(detail)
	case http.StatusNotFound:
		if detail == "" {
			detail = "not found"
		}
		return apperr.NotFound(detail)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperr.Upstream("credential store unavailable",
			fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	default:
		return apperr.Internal("credential store error",
			fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, detail))
	}
}

func readErrorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
