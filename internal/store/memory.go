package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/recallpro/auth/types"
)

// MemoryDB is an in-process backend holding users and refresh tokens with the
// same uniqueness, cascade and liveness rules as the postgres schema.
// It is meant for local runs and tests.
type MemoryDB struct {
	mu          sync.Mutex
	now         func() time.Time
	nextUserID  int64
	nextTokenID int64
	users       map[int64]types.User
	tokens      map[int64]types.RefreshToken
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		now:    time.Now,
		users:  make(map[int64]types.User),
		tokens: make(map[int64]types.RefreshToken),
	}
}

// SetClock replaces the clock used for timestamps and liveness checks.
func (m *MemoryDB) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryDB) Users() *MemoryUserRepository {
	return &MemoryUserRepository{db: m}
}

func (m *MemoryDB) RefreshTokens() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{db: m}
}

// MemoryUserRepository is the user side of a MemoryDB.
type MemoryUserRepository struct {
	db *MemoryDB
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id int64) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *MemoryUserRepository) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.db.findUser(func(u types.User) bool { return u.Username == username })
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	return r.db.findUser(func(u types.User) bool { return u.Email == email })
}

func (r *MemoryUserRepository) List(_ context.Context, offset, limit int, search string) ([]types.User, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	needle := strings.ToLower(search)
	matched := make([]types.User, 0, len(r.db.users))
	for _, user := range r.db.sortedUsers() {
		if needle == "" ||
			strings.Contains(strings.ToLower(user.Username), needle) ||
			strings.Contains(strings.ToLower(user.Email), needle) {
			matched = append(matched, user)
		}
	}
	return page(matched, offset, limit), len(matched), nil
}

func (r *MemoryUserRepository) Create(_ context.Context, user types.User) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := r.db.checkUnique(0, user.Username, user.Email); err != nil {
		return types.User{}, err
	}

	r.db.nextUserID++
	user.ID = r.db.nextUserID
	user.IsActive = true
	user.CreatedAt = r.db.now().UTC()
	user.UpdatedAt = nil
	r.db.users[user.ID] = user
	return user, nil
}

func (r *MemoryUserRepository) Update(_ context.Context, id int64, update types.UserUpdate) (types.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	user, ok := r.db.users[id]
	if !ok {
		return types.User{}, ErrNotFound
	}

	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if err := r.db.checkUnique(id, user.Username, user.Email); err != nil {
		return types.User{}, err
	}
	if update.PasswordHash != nil {
		user.PasswordHash = *update.PasswordHash
	}
	if update.IsActive != nil {
		user.IsActive = *update.IsActive
	}
	updatedAt := r.db.now().UTC()
	user.UpdatedAt = &updatedAt

	r.db.users[id] = user
	return user, nil
}

func (r *MemoryUserRepository) Delete(_ context.Context, id int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.db.users, id)
	for tokenID, token := range r.db.tokens {
		if token.UserID == id {
			delete(r.db.tokens, tokenID)
		}
	}
	return nil
}

// MemoryRefreshTokenRepository is the refresh token side of a MemoryDB.
type MemoryRefreshTokenRepository struct {
	db *MemoryDB
}

func (r *MemoryRefreshTokenRepository) Create(_ context.Context, token types.RefreshToken) (types.RefreshToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[token.UserID]; !ok {
		return types.RefreshToken{}, ErrInvalidReference
	}
	for _, existing := range r.db.tokens {
		if existing.TokenHash == token.TokenHash {
			return types.RefreshToken{}, &ConflictError{Field: "token"}
		}
	}

	r.db.nextTokenID++
	token.ID = r.db.nextTokenID
	token.CreatedAt = r.db.now().UTC()
	token.IsRevoked = false
	r.db.tokens[token.ID] = token
	return token, nil
}

func (r *MemoryRefreshTokenRepository) GetLiveByHash(_ context.Context, tokenHash string) (types.RefreshToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	for _, token := range r.db.tokens {
		if token.TokenHash == tokenHash && token.Live(now) {
			return token, nil
		}
	}
	return types.RefreshToken{}, ErrNotFound
}

func (r *MemoryRefreshTokenRepository) ListByUser(_ context.Context, userID int64) ([]types.RefreshToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	tokens := make([]types.RefreshToken, 0)
	for _, token := range r.db.sortedTokens() {
		if token.UserID == userID {
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (r *MemoryRefreshTokenRepository) List(_ context.Context, offset, limit int, filter types.RefreshTokenFilter) ([]types.RefreshToken, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	matched := make([]types.RefreshToken, 0, len(r.db.tokens))
	for _, token := range r.db.sortedTokens() {
		if filter.UserID != nil && token.UserID != *filter.UserID {
			continue
		}
		if filter.IsRevoked != nil && token.IsRevoked != *filter.IsRevoked {
			continue
		}
		matched = append(matched, token)
	}
	return page(matched, offset, limit), len(matched), nil
}

func (r *MemoryRefreshTokenRepository) Revoke(_ context.Context, tokenHash string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for id, token := range r.db.tokens {
		if token.TokenHash == tokenHash {
			token.IsRevoked = true
			r.db.tokens[id] = token
			return nil
		}
	}
	return ErrNotFound
}

func (r *MemoryRefreshTokenRepository) RevokeAllForUser(_ context.Context, userID int64) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var count int64
	for id, token := range r.db.tokens {
		if token.UserID == userID && !token.IsRevoked {
			token.IsRevoked = true
			r.db.tokens[id] = token
			count++
		}
	}
	return count, nil
}

func (r *MemoryRefreshTokenRepository) DeleteExpired(_ context.Context) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	var count int64
	for id, token := range r.db.tokens {
		if !token.ExpiresAt.After(now) {
			delete(r.db.tokens, id)
			count++
		}
	}
	return count, nil
}

// The helpers below expect m.mu to be held.

func (m *MemoryDB) findUser(match func(types.User) bool) (types.User, error) {
	for _, user := range m.users {
		if match(user) {
			return user, nil
		}
	}
	return types.User{}, ErrNotFound
}

func (m *MemoryDB) checkUnique(selfID int64, username, email string) error {
	for id, user := range m.users {
		if id != selfID && user.Username == username {
			return &ConflictError{Field: "username"}
		}
	}
	for id, user := range m.users {
		if id != selfID && user.Email == email {
			return &ConflictError{Field: "email"}
		}
	}
	return nil
}

func (m *MemoryDB) sortedUsers() []types.User {
	users := make([]types.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (m *MemoryDB) sortedTokens() []types.RefreshToken {
	tokens := make([]types.RefreshToken, 0, len(m.tokens))
	for _, token := range m.tokens {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 10
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
