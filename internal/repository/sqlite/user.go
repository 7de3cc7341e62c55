package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

// compile-time check that *UserDB implements repository.UserRepository
var _ repository.UserRepository = (*UserDB)(nil)

type UserDB struct {
	db *DB
}

const userColumns = `id, username, email, password_hash, role, is_verified, github_id,
	avatar_url, bio, created_at, updated_at`

// Create inserts a new user, assigning ID and timestamps in place.
// A clash on username or email comes back as apperror.ErrConflict naming the field.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = model.UserRoleUser
	}

	_, err := u.db.conn.ExecContext(ctx,
		`INSERT INTO users (id, username, email, password_hash, role, is_verified, github_id,
			avatar_url, bio, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.Role,
		boolToInt(user.IsVerified),
		user.GitHubID,
		user.AvatarURL,
		user.Bio,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return userConstraintError(err, fmt.Sprintf("sqlite: inserting user %q", user.Username))
	}
	return nil
}

func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return u.getOne(ctx, "id", id, id)
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return u.getOne(ctx, "username", username, username)
}

// GetByEmail matches case-insensitively; emails are stored lowercased by the service.
func (u *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.getOne(ctx, "email", strings.ToLower(email), email)
}

func (u *UserDB) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return u.getOne(ctx, "github_id", githubID, fmt.Sprint(githubID))
}

// getOne is only ever called with a fixed column name, never user input.
func (u *UserDB) getOne(ctx context.Context, column string, value any, label string) (*model.User, error) {
	row := u.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)

	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", label)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user by %s %s: %w", column, label, err)
	}
	return user, nil
}

// Update writes the mutable profile fields. Password has its own method so
// a profile edit can never clobber the hash.
func (u *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = time.Now().UTC()
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET username = ?, email = ?, avatar_url = ?, bio = ?, github_id = ?,
			is_verified = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username,
		user.Email,
		user.AvatarURL,
		user.Bio,
		user.GitHubID,
		boolToInt(user.IsVerified),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return userConstraintError(err, fmt.Sprintf("sqlite: updating user %s", user.ID))
	}
	return expectOneRow(res, "user", user.ID)
}

func (u *UserDB) UpdatePassword(ctx context.Context, id, hash string) error {
	res, err := u.db.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password for user %s: %w", id, err)
	}
	return expectOneRow(res, "user", id)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var user model.User
	var githubID sql.NullInt64
	err := s.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.IsVerified,
		&githubID,
		&user.AvatarURL,
		&user.Bio,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		user.GitHubID = &id
	}
	return &user, nil
}

func userConstraintError(err error, op string) error {
	if !isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "users.username"):
		e := apperror.AlreadyExists("username is already taken")
		e.Field = "username"
		return e
	case strings.Contains(msg, "users.email"):
		e := apperror.AlreadyExists("email is already registered")
		e.Field = "email"
		return e
	case strings.Contains(msg, "users.github_id"):
		return apperror.AlreadyExists("github account is already linked")
	default:
		return apperror.AlreadyExists("user already exists")
	}
}

// expectOneRow turns "0 rows affected" into NotFound for UPDATE/DELETE by id.
func expectOneRow(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
