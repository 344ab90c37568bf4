package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/recallpro/auth/internal/services"
	"github.com/recallpro/auth/internal/store"
	"github.com/recallpro/auth/types"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	maxEmailLen    = 100
)

// UserHandler exposes the credential store's user records.
type UserHandler struct {
	userService *services.UserService
	log         *slog.Logger
}

func NewUserHandler(userService *services.UserService, log *slog.Logger) *UserHandler {
	return &UserHandler{userService: userService, log: log}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, userService *services.UserService, log *slog.Logger) {
	handler := NewUserHandler(userService, log)

	r.Post("/", handler.CreateUser)
	r.Get("/", handler.ListUsers)
	r.Get("/search/by-username/{username}", handler.GetUserByUsername)
	r.Get("/search/by-email/{email}", handler.GetUserByEmail)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Put("/", handler.UpdateUser)
		r.Delete("/", handler.DeleteUser)
	})
}

type CreateUserRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

// UserListResponse is the paginated user list payload.
type UserListResponse struct {
	Users      []types.User `json:"users"`
	Total      int          `json:"total"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
	TotalPages int          `json:"total_pages"`
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := validateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateEmail(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PasswordHash == "" {
		writeError(w, http.StatusBadRequest, "password_hash is required")
		return
	}

	user, err := h.userService.Create(r.Context(), types.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: req.PasswordHash,
	})
	if err != nil {
		h.writeStoreError(w, r, err, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	users, total, err := h.userService.List(r.Context(), offset, limit, search)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, UserListResponse{
		Users:      users,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
	})
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetUserByUsername(w http.ResponseWriter, r *http.Request) {
	username, err := parsePathParam(r, "username")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByUsername(r.Context(), username)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) GetUserByEmail(w http.ResponseWriter, r *http.Request) {
	email, err := parsePathParam(r, "email")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), email)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var update types.UserUpdate
	if err := decodeJSON(w, r, &update); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if update.Username != nil {
		trimmed := strings.TrimSpace(*update.Username)
		if err := validateUsername(trimmed); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		update.Username = &trimmed
	}
	if update.Email != nil {
		trimmed := strings.TrimSpace(*update.Email)
		if err := validateEmail(trimmed); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		update.Email = &trimmed
	}
	if update.PasswordHash != nil && *update.PasswordHash == "" {
		writeError(w, http.StatusBadRequest, "password_hash must not be empty")
		return
	}

	user, err := h.userService.Update(r.Context(), id, update)
	if err != nil {
		h.writeStoreError(w, r, err, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.userService.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err, "failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true, Message: "user deleted"})
}

func (h *UserHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var conflict *store.ConflictError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.As(err, &conflict):
		writeError(w, http.StatusBadRequest, conflict.Error())
	default:
		h.log.ErrorContext(r.Context(), fallback, "error", err)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return errors.New("username must be between 3 and 50 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if utf8.RuneCountInString(email) > maxEmailLen {
		return errors.New("email must be at most 100 characters")
	}
	return nil
}
