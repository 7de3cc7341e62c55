package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

var _ repository.StarRepository = (*StarDB)(nil)

type StarDB struct {
	db *DB
}

func (s *StarDB) ToggleSnippetStar(ctx context.Context, userID, snippetID string) (*model.StarResult, error) {
	return s.toggle(ctx, "snippet_id", userID, snippetID)
}

func (s *StarDB) ToggleProjectStar(ctx context.Context, userID, projectID string) (*model.StarResult, error) {
	return s.toggle(ctx, "project_id", userID, projectID)
}

// toggle deletes the star if present, otherwise inserts it, and reads the new
// count, all in one transaction. Two rapid toggles by the same user therefore
// always leave the star in a defined state, and the unique key on
// (user_id, column) makes a duplicate insert a no-op rather than an error.
func (s *StarDB) toggle(ctx context.Context, column, userID, targetID string) (*model.StarResult, error) {
	result := &model.StarResult{}

	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM stars WHERE user_id = ? AND `+column+` = ?`, userID, targetID)
		if err != nil {
			return fmt.Errorf("sqlite: removing star: %w", err)
		}
		removed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}

		if removed == 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO stars (id, user_id, `+column+`, created_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT DO NOTHING`,
				xid.New().String(), userID, targetID, time.Now().UTC()); err != nil {
				return fmt.Errorf("sqlite: adding star: %w", err)
			}
			result.IsStarred = true
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM stars WHERE `+column+` = ?`, targetID).Scan(&result.StarCount); err != nil {
			return fmt.Errorf("sqlite: counting stars: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
