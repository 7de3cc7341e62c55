package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

var _ repository.CollaboratorRepository = (*CollaboratorDB)(nil)

type CollaboratorDB struct {
	db *DB
}

// AddProjectCollaborator is a single INSERT guarded by the composite primary
// key, so two concurrent joins for the same user cannot both succeed.
func (c *CollaboratorDB) AddProjectCollaborator(ctx context.Context, pc *model.ProjectCollaborator) error {
	now := time.Now().UTC()
	pc.CreatedAt = now
	pc.UpdatedAt = now

	_, err := c.db.conn.ExecContext(ctx,
		`INSERT INTO project_collaborators (project_id, user_id, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		pc.ProjectID, pc.UserID, pc.Role, pc.CreatedAt, pc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return apperror.AlreadyExists("user is already a collaborator on this project")
	}
	if err != nil {
		return fmt.Errorf("sqlite: adding collaborator %s to project %s: %w", pc.UserID, pc.ProjectID, err)
	}
	return nil
}

func (c *CollaboratorDB) ProjectRole(ctx context.Context, projectID, userID string) (model.Role, error) {
	if userID == "" {
		return "", nil
	}
	var role model.Role
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT role FROM project_collaborators WHERE project_id = ? AND user_id = ?`,
		projectID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: getting role of %s on project %s: %w", userID, projectID, err)
	}
	return role, nil
}

func (c *CollaboratorDB) ListProjectCollaborators(ctx context.Context, projectID string) ([]model.ProjectCollaborator, error) {
	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT pc.project_id, pc.user_id, pc.role, pc.created_at, pc.updated_at,
			u.id, u.username, u.avatar_url
		 FROM project_collaborators pc
		 JOIN users u ON u.id = pc.user_id
		 WHERE pc.project_id = ?
		 ORDER BY pc.created_at, u.username`, projectID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing collaborators of project %s: %w", projectID, err)
	}
	defer rows.Close()

	out := []model.ProjectCollaborator{}
	for rows.Next() {
		var pc model.ProjectCollaborator
		if err := rows.Scan(&pc.ProjectID, &pc.UserID, &pc.Role, &pc.CreatedAt, &pc.UpdatedAt,
			&pc.User.ID, &pc.User.Username, &pc.User.AvatarURL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning collaborator: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (c *CollaboratorDB) UpdateProjectCollaboratorRole(ctx context.Context, projectID, userID string, role model.Role) error {
	res, err := c.db.conn.ExecContext(ctx,
		`UPDATE project_collaborators SET role = ?, updated_at = ? WHERE project_id = ? AND user_id = ?`,
		role, time.Now().UTC(), projectID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: updating role of %s on project %s: %w", userID, projectID, err)
	}
	return expectOneRow(res, "collaborator", userID)
}

func (c *CollaboratorDB) RemoveProjectCollaborator(ctx context.Context, projectID, userID string) error {
	res, err := c.db.conn.ExecContext(ctx,
		`DELETE FROM project_collaborators WHERE project_id = ? AND user_id = ?`, projectID, userID)
	if err != nil {
		return fmt.Errorf("sqlite: removing %s from project %s: %w", userID, projectID, err)
	}
	return expectOneRow(res, "collaborator", userID)
}

func (c *CollaboratorDB) AddSnippetCollaborator(ctx context.Context, sc *model.SnippetCollaborator) error {
	sc.CreatedAt = time.Now().UTC()
	_, err := c.db.conn.ExecContext(ctx,
		`INSERT INTO code_snippet_collaborators (snippet_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?)`,
		sc.SnippetID, sc.UserID, sc.Role, sc.CreatedAt,
	)
	if isUniqueViolation(err) {
		return apperror.AlreadyExists("collaboration already granted for this snippet")
	}
	if err != nil {
		return fmt.Errorf("sqlite: adding collaborator %s to snippet %s: %w", sc.UserID, sc.SnippetID, err)
	}
	return nil
}

func (c *CollaboratorDB) IsSnippetCollaborator(ctx context.Context, snippetID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var ok bool
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM code_snippet_collaborators WHERE snippet_id = ? AND user_id = ?)`,
		snippetID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking collaborator %s on snippet %s: %w", userID, snippetID, err)
	}
	return ok, nil
}

func (c *CollaboratorDB) ListSnippetCollaborators(ctx context.Context, snippetID string) ([]model.SnippetCollaborator, error) {
	rows, err := c.db.conn.QueryContext(ctx,
		`SELECT sc.snippet_id, sc.user_id, sc.role, sc.created_at, u.id, u.username, u.avatar_url
		 FROM code_snippet_collaborators sc
		 JOIN users u ON u.id = sc.user_id
		 WHERE sc.snippet_id = ?
		 ORDER BY sc.created_at, u.username`, snippetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing collaborators of snippet %s: %w", snippetID, err)
	}
	defer rows.Close()

	out := []model.SnippetCollaborator{}
	for rows.Next() {
		var sc model.SnippetCollaborator
		if err := rows.Scan(&sc.SnippetID, &sc.UserID, &sc.Role, &sc.CreatedAt,
			&sc.User.ID, &sc.User.Username, &sc.User.AvatarURL); err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet collaborator: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
