package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"
)

// tagLink names a join table between an owning resource and tags.
type tagLink struct {
	table  string // snippet_tags or project_tags
	column string // snippet_id or project_id
}

var (
	snippetTagLink = tagLink{table: "snippet_tags", column: "snippet_id"}
	projectTagLink = tagLink{table: "project_tags", column: "project_id"}
)

// setTags replaces the owner's tag set with names. Tags are found-or-created
// by name, so two resources tagged "go" share one tags row. Callers pass
// already-normalized names.
func setTags(ctx context.Context, q querier, link tagLink, ownerID string, names []string) error {
	if _, err := q.ExecContext(ctx,
		`DELETE FROM `+link.table+` WHERE `+link.column+` = ?`, ownerID); err != nil {
		return fmt.Errorf("sqlite: clearing tags: %w", err)
	}

	for _, name := range names {
		tagID, err := ensureTag(ctx, q, name)
		if err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO `+link.table+` (`+link.column+`, tag_id) VALUES (?, ?)
			 ON CONFLICT DO NOTHING`,
			ownerID, tagID); err != nil {
			return fmt.Errorf("sqlite: linking tag %q: %w", name, err)
		}
	}
	return nil
}

// ensureTag is race-free: the insert is a no-op when another request created
// the tag first, and the select then returns the winner's row.
func ensureTag(ctx context.Context, q querier, name string) (string, error) {
	if _, err := q.ExecContext(ctx,
		`INSERT INTO tags (id, name) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		xid.New().String(), name); err != nil {
		return "", fmt.Errorf("sqlite: creating tag %q: %w", name, err)
	}
	var id string
	if err := q.QueryRowContext(ctx,
		`SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return "", fmt.Errorf("sqlite: looking up tag %q: %w", name, err)
	}
	return id, nil
}

// loadTags returns tag names keyed by owner id for the given owners.
// Called after the owners' rows have been closed.
func loadTags(ctx context.Context, q querier, link tagLink, ownerIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(ownerIDs))
	for i, id := range ownerIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx,
		`SELECT l.`+link.column+`, t.name
		 FROM `+link.table+` l JOIN tags t ON t.id = l.tag_id
		 WHERE l.`+link.column+` IN (`+placeholders(len(ownerIDs))+`)
		 ORDER BY t.name`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ownerID, name string
		if err := rows.Scan(&ownerID, &name); err != nil {
			return nil, fmt.Errorf("sqlite: scanning tag: %w", err)
		}
		out[ownerID] = append(out[ownerID], name)
	}
	return out, rows.Err()
}
