package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

var _ repository.ProjectRepository = (*ProjectDB)(nil)

type ProjectDB struct {
	db *DB
}

// projectSelect computes star and snippet counts in the same statement as the
// row itself, so listing N projects is one query plus one for tags.
// The single placeholder is the viewer id used for is_starred.
const projectSelect = `
	SELECT p.id, p.owner_id, p.title, p.description, p.is_public, p.is_collaborative,
		p.kind, p.forked_from_project_id, p.created_at, p.updated_at,
		(SELECT COUNT(*) FROM stars st WHERE st.project_id = p.id) AS star_count,
		(SELECT COUNT(*) FROM code_snippets s WHERE s.project_id = p.id) AS snippet_count,
		EXISTS (SELECT 1 FROM stars st WHERE st.project_id = p.id AND st.user_id = ?) AS is_starred
	FROM projects p`

func (p *ProjectDB) Create(ctx context.Context, project *model.Project) error {
	return p.db.withTx(ctx, func(tx *sql.Tx) error {
		return insertProject(ctx, tx, project)
	})
}

// CreateWithSnippets inserts project and then every snippet into it, all in
// one transaction: either the whole copy lands or nothing does.
func (p *ProjectDB) CreateWithSnippets(ctx context.Context, project *model.Project, snippets []*model.Snippet) error {
	return p.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertProject(ctx, tx, project); err != nil {
			return err
		}
		for _, snippet := range snippets {
			snippet.ProjectID = project.ID
			if err := insertSnippet(ctx, tx, snippet); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertProject(ctx context.Context, q querier, project *model.Project) error {
	now := time.Now().UTC()
	project.ID = xid.New().String()
	project.CreatedAt = now
	project.UpdatedAt = now
	if project.Kind == "" {
		project.Kind = model.ProjectKindStandard
	}
	if project.Tags == nil {
		project.Tags = []string{}
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, title, description, is_public, is_collaborative,
			kind, forked_from_project_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		project.ID,
		project.OwnerID,
		project.Title,
		project.Description,
		boolToInt(project.IsPublic),
		boolToInt(project.IsCollaborative),
		project.Kind,
		project.ForkedFromProjectID,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.AlreadyExists(fmt.Sprintf("%s project already exists", project.Kind))
		}
		return fmt.Errorf("sqlite: inserting project %q: %w", project.Title, err)
	}
	return setTags(ctx, q, projectTagLink, project.ID, project.Tags)
}

func (p *ProjectDB) GetByID(ctx context.Context, id, viewerID string) (*model.Project, error) {
	row := p.db.conn.QueryRowContext(ctx, projectSelect+` WHERE p.id = ?`, viewerID, id)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("project", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting project %s: %w", id, err)
	}

	tags, err := loadTags(ctx, p.db.conn, projectTagLink, []string{project.ID})
	if err != nil {
		return nil, err
	}
	project.Tags = nonNil(tags[project.ID])
	return project, nil
}

// Update writes title, description and the two flags. Tags go through SetTags.
func (p *ProjectDB) Update(ctx context.Context, project *model.Project) error {
	project.UpdatedAt = time.Now().UTC()
	res, err := p.db.conn.ExecContext(ctx,
		`UPDATE projects SET title = ?, description = ?, is_public = ?, is_collaborative = ?,
			updated_at = ?
		 WHERE id = ?`,
		project.Title,
		project.Description,
		boolToInt(project.IsPublic),
		boolToInt(project.IsCollaborative),
		project.UpdatedAt,
		project.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating project %s: %w", project.ID, err)
	}
	return expectOneRow(res, "project", project.ID)
}

// Delete removes the project; snippets, collaborators, stars and tag links
// go with it through ON DELETE CASCADE.
func (p *ProjectDB) Delete(ctx context.Context, id string) error {
	res, err := p.db.conn.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting project %s: %w", id, err)
	}
	return expectOneRow(res, "project", id)
}

func (p *ProjectDB) ListForUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Project, int, error) {
	const where = ` WHERE p.owner_id = ?
		OR EXISTS (SELECT 1 FROM project_collaborators pc WHERE pc.project_id = p.id AND pc.user_id = ?)`

	var total int
	if err := p.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects p`+where, userID, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting projects for %s: %w", userID, err)
	}

	rows, err := p.db.conn.QueryContext(ctx,
		projectSelect+where+` ORDER BY p.updated_at DESC, p.id DESC LIMIT ? OFFSET ?`,
		userID, userID, userID, limitArg(opts), opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing projects for %s: %w", userID, err)
	}

	projects := []model.Project{}
	var ids []string
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("sqlite: scanning project: %w", err)
		}
		projects = append(projects, *project)
		ids = append(ids, project.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("sqlite: iterating projects: %w", err)
	}
	rows.Close()

	tags, err := loadTags(ctx, p.db.conn, projectTagLink, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range projects {
		projects[i].Tags = nonNil(tags[projects[i].ID])
	}
	return projects, total, nil
}

// EnsureSystemProject relies on the partial unique index over
// (owner_id, kind): concurrent first calls insert at most one row, and every
// caller then reads that row back.
func (p *ProjectDB) EnsureSystemProject(ctx context.Context, ownerID string, kind model.ProjectKind, title string) (*model.Project, error) {
	if kind == model.ProjectKindStandard {
		return nil, fmt.Errorf("sqlite: %q is not a system project kind", kind)
	}

	now := time.Now().UTC()
	_, err := p.db.conn.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, title, description, is_public, is_collaborative,
			kind, created_at, updated_at)
		 VALUES (?, ?, ?, '', 0, 0, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		xid.New().String(), ownerID, title, kind, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating %s project for %s: %w", kind, ownerID, err)
	}

	var id string
	err = p.db.conn.QueryRowContext(ctx,
		`SELECT id FROM projects WHERE owner_id = ? AND kind = ?`, ownerID, kind).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: finding %s project for %s: %w", kind, ownerID, err)
	}
	return p.GetByID(ctx, id, ownerID)
}

func (p *ProjectDB) SetTags(ctx context.Context, projectID string, tags []string) error {
	return p.db.withTx(ctx, func(tx *sql.Tx) error {
		return setTags(ctx, tx, projectTagLink, projectID, tags)
	})
}

func scanProject(s rowScanner) (*model.Project, error) {
	var project model.Project
	var forkedFrom sql.NullString
	err := s.Scan(
		&project.ID,
		&project.OwnerID,
		&project.Title,
		&project.Description,
		&project.IsPublic,
		&project.IsCollaborative,
		&project.Kind,
		&forkedFrom,
		&project.CreatedAt,
		&project.UpdatedAt,
		&project.StarCount,
		&project.SnippetCount,
		&project.IsStarred,
	)
	if err != nil {
		return nil, err
	}
	project.ForkedFromProjectID = nullStringPtr(forkedFrom)
	return &project, nil
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
