package types

import "time"

// User represents an account in the credential store.
// It contains identity, credential, and audit metadata.
type User struct {
	// ID is the unique identifier of the user. It is assigned by the store
	// on creation and never changes.
	ID int64 `json:"id" db:"id"`

	// Username is the unique login name chosen by the user (3 to 50 characters).
	Username string `json:"username" db:"username"`

	// Email is the user's email address. It is unique across all users.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// Only the credential store's internal API carries it; the auth
	// service never returns it to end clients.
	PasswordHash string `json:"password_hash" db:"password_hash"`

	// IsActive reports whether the account may log in or refresh sessions.
	IsActive bool `json:"is_active" db:"is_active"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	// It is nil until the first mutation.
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// UserUpdate carries a partial update of a user. Nil fields are left untouched.
type UserUpdate struct {
	Username     *string `json:"username,omitempty"`
	Email        *string `json:"email,omitempty"`
	PasswordHash *string `json:"password_hash,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

// IsEmpty reports whether the update sets no field at all.
func (u UserUpdate) IsEmpty() bool {
	return u.Username == nil && u.Email == nil && u.PasswordHash == nil && u.IsActive == nil
}
