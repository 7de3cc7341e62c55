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

var _ repository.SnippetRepository = (*SnippetDB)(nil)

type SnippetDB struct {
	db *DB
}

// snippetSelect carries the owner (from the project) and the engagement
// counters, so a listing never issues per-row follow-up queries.
// The single placeholder is the viewer id used for is_starred.
const snippetSelect = `
	SELECT s.id, s.project_id, s.title, s.content, s.language, s.file_path,
		s.is_public, s.allow_collaboration, s.forked_from_snippet_id, s.forked_from_project_id,
		s.created_at, s.updated_at, p.owner_id,
		(SELECT COUNT(*) FROM stars st WHERE st.snippet_id = s.id) AS star_count,
		(SELECT COUNT(*) FROM code_snippets f WHERE f.forked_from_snippet_id = s.id) AS fork_count,
		EXISTS (SELECT 1 FROM stars st WHERE st.snippet_id = s.id AND st.user_id = ?) AS is_starred
	FROM code_snippets s
	JOIN projects p ON p.id = s.project_id`

// readablePredicate matches snippets the viewer may read: public ones, their
// own, ones in a project they collaborate on, and ones they were granted.
// It takes the viewer id three times.
const readablePredicate = `(s.is_public = 1
	OR p.owner_id = ?
	OR EXISTS (SELECT 1 FROM project_collaborators pc WHERE pc.project_id = s.project_id AND pc.user_id = ?)
	OR EXISTS (SELECT 1 FROM code_snippet_collaborators sc WHERE sc.snippet_id = s.id AND sc.user_id = ?))`

// Create inserts the snippet and its tags in one transaction.
func (r *SnippetDB) Create(ctx context.Context, snippet *model.Snippet) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		return insertSnippet(ctx, tx, snippet)
	})
}

func insertSnippet(ctx context.Context, q querier, snippet *model.Snippet) error {
	now := time.Now().UTC()
	snippet.ID = xid.New().String()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now
	if snippet.Tags == nil {
		snippet.Tags = []string{}
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO code_snippets (id, project_id, title, content, language, file_path,
			is_public, allow_collaboration, forked_from_snippet_id, forked_from_project_id,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.ProjectID,
		snippet.Title,
		snippet.Content,
		snippet.Language,
		snippet.FilePath,
		boolToInt(snippet.IsPublic),
		boolToInt(snippet.AllowCollaboration),
		snippet.ForkedFromSnippetID,
		snippet.ForkedFromProjectID,
		snippet.CreatedAt,
		snippet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting snippet %q: %w", snippet.Title, err)
	}
	return setTags(ctx, q, snippetTagLink, snippet.ID, snippet.Tags)
}

// GetByID returns the snippet regardless of visibility; access is decided by
// the caller. viewerID only feeds IsStarred.
func (r *SnippetDB) GetByID(ctx context.Context, id, viewerID string) (*model.Snippet, error) {
	row := r.db.conn.QueryRowContext(ctx, snippetSelect+` WHERE s.id = ?`, viewerID, id)
	snippet, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("snippet", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}

	tags, err := loadTags(ctx, r.db.conn, snippetTagLink, []string{snippet.ID})
	if err != nil {
		return nil, err
	}
	snippet.Tags = nonNil(tags[snippet.ID])
	return snippet, nil
}

// List runs one of the listing scopes and returns the page plus the total
// number of matches, newest update first.
func (r *SnippetDB) List(ctx context.Context, f repository.SnippetFilter) ([]model.Snippet, int, error) {
	where, args, err := snippetWhere(f)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM code_snippets s JOIN projects p ON p.id = s.project_id`+where,
		args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: counting %s snippets: %w", f.Scope, err)
	}

	queryArgs := make([]any, 0, len(args)+3)
	queryArgs = append(queryArgs, f.ViewerID)
	queryArgs = append(queryArgs, args...)
	queryArgs = append(queryArgs, limitArg(f.ListOptions), f.Offset)

	rows, err := r.db.conn.QueryContext(ctx,
		snippetSelect+where+` ORDER BY s.updated_at DESC, s.id DESC LIMIT ? OFFSET ?`,
		queryArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: listing %s snippets: %w", f.Scope, err)
	}

	snippets := []model.Snippet{}
	var ids []string
	for rows.Next() {
		snippet, err := scanSnippet(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("sqlite: scanning snippet: %w", err)
		}
		snippets = append(snippets, *snippet)
		ids = append(ids, snippet.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	rows.Close()

	tags, err := loadTags(ctx, r.db.conn, snippetTagLink, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range snippets {
		snippets[i].Tags = nonNil(tags[snippets[i].ID])
	}
	return snippets, total, nil
}

// snippetWhere builds the WHERE clause for a filter. Only fixed SQL fragments
// are concatenated; every value goes through a placeholder.
func snippetWhere(f repository.SnippetFilter) (string, []any, error) {
	var conds []string
	var args []any
	v := f.ViewerID

	switch f.Scope {
	case repository.ScopePublic:
		conds = append(conds, `s.is_public = 1`)
	case repository.ScopeCollaborative:
		conds = append(conds, `s.is_public = 1 AND s.allow_collaboration = 1`)
	case repository.ScopeOwned:
		conds = append(conds, `p.owner_id = ?`)
		args = append(args, v)
	case repository.ScopeForked:
		conds = append(conds, `p.owner_id = ? AND s.forked_from_snippet_id IS NOT NULL`)
		args = append(args, v)
	case repository.ScopeStarred:
		conds = append(conds,
			`EXISTS (SELECT 1 FROM stars st WHERE st.snippet_id = s.id AND st.user_id = ?)`,
			readablePredicate)
		args = append(args, v, v, v, v)
	case repository.ScopeProject:
		conds = append(conds, `s.project_id = ?`, readablePredicate)
		args = append(args, f.ProjectID, v, v, v)
	default:
		return "", nil, fmt.Errorf("sqlite: unknown snippet scope %q", f.Scope)
	}

	if f.Language != "" {
		conds = append(conds, `s.language = ?`)
		args = append(args, f.Language)
	}
	if f.Search != "" {
		pattern := likePattern(f.Search)
		conds = append(conds, `(LOWER(s.title) LIKE ? ESCAPE '\' OR LOWER(s.content) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}

	return ` WHERE ` + strings.Join(conds, ` AND `), args, nil
}

// Update writes the content fields and flags. ProjectID and fork lineage are
// immutable after creation. Tags go through SetTags.
func (r *SnippetDB) Update(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now().UTC()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE code_snippets SET title = ?, content = ?, language = ?, file_path = ?,
			is_public = ?, allow_collaboration = ?, updated_at = ?
		 WHERE id = ?`,
		snippet.Title,
		snippet.Content,
		snippet.Language,
		snippet.FilePath,
		boolToInt(snippet.IsPublic),
		boolToInt(snippet.AllowCollaboration),
		snippet.UpdatedAt,
		snippet.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}
	return expectOneRow(res, "snippet", snippet.ID)
}

// Delete removes the snippet. Forks survive: their forked_from_snippet_id is
// set to NULL by the foreign key.
func (r *SnippetDB) Delete(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM code_snippets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return expectOneRow(res, "snippet", id)
}

func (r *SnippetDB) SetTags(ctx context.Context, snippetID string, tags []string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		return setTags(ctx, tx, snippetTagLink, snippetID, tags)
	})
}

func scanSnippet(s rowScanner) (*model.Snippet, error) {
	var snippet model.Snippet
	var forkedSnippet, forkedProject sql.NullString
	err := s.Scan(
		&snippet.ID,
		&snippet.ProjectID,
		&snippet.Title,
		&snippet.Content,
		&snippet.Language,
		&snippet.FilePath,
		&snippet.IsPublic,
		&snippet.AllowCollaboration,
		&forkedSnippet,
		&forkedProject,
		&snippet.CreatedAt,
		&snippet.UpdatedAt,
		&snippet.OwnerID,
		&snippet.StarCount,
		&snippet.ForkCount,
		&snippet.IsStarred,
	)
	if err != nil {
		return nil, err
	}
	snippet.ForkedFromSnippetID = nullStringPtr(forkedSnippet)
	snippet.ForkedFromProjectID = nullStringPtr(forkedProject)
	return &snippet, nil
}
