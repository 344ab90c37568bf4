package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/recallpro/auth/config"
	"github.com/recallpro/auth/internal/auth"
	"github.com/recallpro/auth/internal/logging"
	"github.com/recallpro/auth/internal/store"
	"github.com/recallpro/auth/internal/storeclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type authFixture struct {
	router   http.Handler
	storeSrv *httptest.Server
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	storeSrv := httptest.NewServer(newStoreRouter(store.NewMemoryDB()))
	t.Cleanup(storeSrv.Close)

	log := logging.Discard()
	client := storeclient.NewHTTPClient(config.StoreClientConfig{BaseURL: storeSrv.URL + "/api/v1", Timeout: 2 * time.Second}, nil, log)
	engine, err := auth.NewEngine(client, config.AuthConfig{
		JWTSecret:                "handler-secret",
		AccessTokenExpireMinutes: 30,
		RefreshTokenExpireDays:   7,
		BcryptCost:               bcrypt.MinCost,
	}, log)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		AuthRouter(r, engine, log)
	})
	return &authFixture{router: r, storeSrv: storeSrv}
}

func (f *authFixture) withBearer(t *testing.T, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthHandlers_SignupLoginVerify(t *testing.T) {
	f := newAuthFixture(t)

	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/signup", SignupRequest{Username: "alice", Email: "a@x.com", Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	signup := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "alice", signup["username"])
	assert.NotContains(t, signup, "password_hash")
	assert.NotContains(t, signup, "password")

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/login", LoginRequest{Username: "alice", Password: "secret123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password_hash")
	login := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, "bearer", login.TokenType)
	assert.Equal(t, "alice", login.User.Username)

	rec = f.withBearer(t, http.MethodGet, "/api/v1/verify", login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	verify := decodeBody[VerifyResponse](t, rec)
	assert.True(t, verify.Valid)
	assert.Equal(t, "alice", verify.Payload["sub"])
	assert.EqualValues(t, 1, verify.Payload["user_id"])

	rec = f.withBearer(t, http.MethodGet, "/api/v1/verify", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.withBearer(t, http.MethodGet, "/api/v1/verify", login.AccessToken+"x")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid token", decodeBody[ErrorResponse](t, rec).Error)
}

func TestAuthHandlers_SignupErrors(t *testing.T) {
	f := newAuthFixture(t)

	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/signup", SignupRequest{Username: "alice", Email: "a@x.com", Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/signup", SignupRequest{Username: "alice", Email: "b@x.com", Password: "secret123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "username already exists", decodeBody[ErrorResponse](t, rec).Error)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/signup", SignupRequest{Username: "bob", Email: "b@x.com", Password: "123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/signup", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlers_LoginFailureIsUniform(t *testing.T) {
	f := newAuthFixture(t)
	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/signup", SignupRequest{Username: "alice", Email: "a@x.com", Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code)

	unknown := doJSON(t, f.router, http.MethodPost, "/api/v1/login", LoginRequest{Username: "nobody", Password: "secret123"})
	wrong := doJSON(t, f.router, http.MethodPost, "/api/v1/login", LoginRequest{Username: "alice", Password: "nope-nope"})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
}

func TestAuthHandlers_RefreshLogoutRevokeAll(t *testing.T) {
	f := newAuthFixture(t)
	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/signup", SignupRequest{Username: "alice", Email: "a@x.com", Password: "secret123"})
	require.Equal(t, http.StatusCreated, rec.Code)

	login := func() LoginResponse {
		rec := doJSON(t, f.router, http.MethodPost, "/api/v1/login", LoginRequest{Username: "alice", Password: "secret123"})
		require.Equal(t, http.StatusOK, rec.Code)
		return decodeBody[LoginResponse](t, rec)
	}
	first := login()
	second := login()

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/refresh", RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeBody[RefreshResponse](t, rec).AccessToken)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/logout", RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[LogoutResponse](t, rec).Success)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/logout", RefreshTokenRequest{RefreshToken: first.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/refresh", RefreshTokenRequest{RefreshToken: first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid or expired refresh token", decodeBody[ErrorResponse](t, rec).Error)

	rec = f.withBearer(t, http.MethodPost, "/api/v1/sessions/revoke-all", second.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeBody[RevokeAllResponse](t, rec).RevokedCount)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/refresh", RefreshTokenRequest{RefreshToken: second.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.withBearer(t, http.MethodPost, "/api/v1/sessions/revoke-all", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlers_StoreDown(t *testing.T) {
	f := newAuthFixture(t)
	f.storeSrv.Close()

	rec := doJSON(t, f.router, http.MethodPost, "/api/v1/login", LoginRequest{Username: "alice", Password: "secret123"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "service temporarily unavailable", decodeBody[ErrorResponse](t, rec).Error)

	rec = doJSON(t, f.router, http.MethodPost, "/api/v1/logout", RefreshTokenRequest{RefreshToken: "abc"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
