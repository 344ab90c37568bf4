package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/recallpro/auth/internal/services"
	"github.com/recallpro/auth/internal/store"
	"github.com/recallpro/auth/types"
)

// TokenHandler exposes the credential store's refresh token records.
type TokenHandler struct {
	tokenService *services.TokenService
	log          *slog.Logger
}

func NewTokenHandler(tokenService *services.TokenService, log *slog.Logger) *TokenHandler {
	return &TokenHandler{tokenService: tokenService, log: log}
}

// TokenRouter registers refresh token routes on the given router.
func TokenRouter(r chi.Router, tokenService *services.TokenService, log *slog.Logger) {
	handler := NewTokenHandler(tokenService, log)

	r.Post("/", handler.CreateToken)
	r.Get("/", handler.ListTokens)
	r.Get("/user/{userID}", handler.ListUserTokens)
	r.Get("/verify/{tokenHash}", handler.VerifyToken)
	r.Post("/revoke", handler.RevokeToken)
	r.Post("/revoke-user/{userID}", handler.RevokeUserTokens)
	r.Post("/cleanup", handler.CleanupExpiredTokens)
}

type CreateTokenRequest struct {
	TokenHash string    `json:"token_hash"`
	UserID    int64     `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type RevokeTokenRequest struct {
	TokenHash string `json:"token_hash"`
}

// TokenListResponse is the paginated token list payload.
type TokenListResponse struct {
	Tokens     []types.RefreshToken `json:"tokens"`
	Total      int                  `json:"total"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"total_pages"`
}

type RevokeUserTokensResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	RevokedCount int64  `json:"revoked_count"`
}

type CleanupResponse struct {
	DeletedCount int64  `json:"deleted_count"`
	Message      string `json:"message"`
}

func (h *TokenHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req CreateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.TokenHash = strings.TrimSpace(req.TokenHash)
	if req.TokenHash == "" {
		writeError(w, http.StatusBadRequest, "token_hash is required")
		return
	}
	if req.UserID < 1 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.ExpiresAt.IsZero() {
		writeError(w, http.StatusBadRequest, "expires_at is required")
		return
	}

	token, err := h.tokenService.Create(r.Context(), types.RefreshToken{
		TokenHash: req.TokenHash,
		UserID:    req.UserID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		var conflict *store.ConflictError
		switch {
		case errors.Is(err, store.ErrInvalidReference):
			writeError(w, http.StatusBadRequest, "user does not exist")
		case errors.As(err, &conflict):
			writeError(w, http.StatusBadRequest, conflict.Error())
		default:
			h.log.ErrorContext(r.Context(), "failed to create token", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create token")
		}
		return
	}

	writeJSON(w, http.StatusCreated, token)
}

func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter, err := parseTokenFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, total, err := h.tokenService.List(r.Context(), offset, limit, filter)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}

	writeJSON(w, http.StatusOK, TokenListResponse{
		Tokens:     tokens,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	})
}

func (h *TokenHandler) ListUserTokens(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.tokenService.ListByUser(r.Context(), userID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list user tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// VerifyToken returns the token record only while it is live.
func (h *TokenHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	tokenHash, err := parsePathParam(r, "tokenHash")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.tokenService.GetLive(r.Context(), tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found, revoked or expired")
			return
		}
		h.log.ErrorContext(r.Context(), "failed to verify token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify token")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *TokenHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	var req RevokeTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.TokenHash) == "" {
		writeError(w, http.StatusBadRequest, "token_hash is required")
		return
	}

	if err := h.tokenService.Revoke(r.Context(), req.TokenHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		h.log.ErrorContext(r.Context(), "failed to revoke token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke token")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "token revoked"})
}

func (h *TokenHandler) RevokeUserTokens(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.tokenService.RevokeAllForUser(r.Context(), userID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to revoke user tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to revoke tokens")
		return
	}
	writeJSON(w, http.StatusOK, RevokeUserTokensResponse{
		Success:      true,
		Message:      fmt.Sprintf("revoked %d tokens", count),
		RevokedCount: count,
	})
}

func (h *TokenHandler) CleanupExpiredTokens(w http.ResponseWriter, r *http.Request) {
	count, err := h.tokenService.DeleteExpired(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to clean up tokens", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clean up tokens")
		return
	}
	writeJSON(w, http.StatusOK, CleanupResponse{
		DeletedCount: count,
		Message:      fmt.Sprintf("deleted %d expired tokens", count),
	})
}

func parseTokenFilter(r *http.Request) (types.RefreshTokenFilter, error) {
	var filter types.RefreshTokenFilter
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("user_id")); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID < 1 {
			return filter, errors.New("invalid user_id")
		}
		filter.UserID = &userID
	}
	if raw := strings.TrimSpace(query.Get("is_revoked")); raw != "" {
		revoked, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("invalid is_revoked")
		}
		filter.IsRevoked = &revoked
	}
	return filter, nil
}
