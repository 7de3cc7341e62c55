// Package model defines the data structures used throughout the application.
package model

import "time"

// UserRole is the account-level role. It is unrelated to the per-project
// collaborator Role.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User represents a registered user account.
//
// Users register with a username/email/password pair. GitHubID is set when
// the account was created or linked through GitHub OAuth; it is nil for
// password-only accounts, so the UNIQUE constraint on github_id ignores them.
//
// PasswordHash is never serialized (json:"-"). GitHub-only accounts have an
// empty hash and cannot log in with a password.
type User struct {
	ID           string    `json:"id"         db:"id"`
	Username     string    `json:"username"   db:"username"`
	Email        string    `json:"email"      db:"email"`
	PasswordHash string    `json:"-"          db:"password_hash"`
	Role         UserRole  `json:"role"       db:"role"`
	IsVerified   bool      `json:"isVerified" db:"is_verified"`
	GitHubID     *int64    `json:"githubId,omitempty" db:"github_id"`
	AvatarURL    string    `json:"avatarUrl"  db:"avatar_url"`
	Bio          string    `json:"bio"        db:"bio"`
	CreatedAt    time.Time `json:"createdAt"  db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"  db:"updated_at"`
}

// UserSummary is the public projection of a user embedded in other views
// (collaborator lists, snippet owners).
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}
