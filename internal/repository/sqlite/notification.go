package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

var _ repository.NotificationRepository = (*NotificationDB)(nil)

type NotificationDB struct {
	db *DB
}

func (n *NotificationDB) Create(ctx context.Context, notif *model.Notification) error {
	notif.ID = xid.New().String()
	notif.CreatedAt = time.Now().UTC()
	notif.IsRead = false

	_, err := n.db.conn.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, actor_id, type, message, resource_id, is_read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)`,
		notif.ID, notif.UserID, notif.ActorID, notif.Type, notif.Message, notif.ResourceID, notif.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting notification for %s: %w", notif.UserID, err)
	}
	return nil
}

func (n *NotificationDB) ListForUser(ctx context.Context, userID string, unreadOnly bool, opts repository.ListOptions) ([]model.Notification, error) {
	query := `SELECT id, user_id, actor_id, type, message, resource_id, is_read, created_at
		FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := n.db.conn.QueryContext(ctx, query, userID, limitArg(opts), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing notifications for %s: %w", userID, err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var notif model.Notification
		if err := rows.Scan(&notif.ID, &notif.UserID, &notif.ActorID, &notif.Type, &notif.Message,
			&notif.ResourceID, &notif.IsRead, &notif.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning notification: %w", err)
		}
		out = append(out, notif)
	}
	return out, rows.Err()
}

func (n *NotificationDB) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := n.db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND is_read = 0`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting unread notifications for %s: %w", userID, err)
	}
	return count, nil
}

// MarkRead only touches the recipient's own notification; someone else's id
// reads as not found.
func (n *NotificationDB) MarkRead(ctx context.Context, id, userID string) error {
	res, err := n.db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: marking notification %s read: %w", id, err)
	}
	return expectOneRow(res, "notification", id)
}

func (n *NotificationDB) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	res, err := n.db.conn.ExecContext(ctx,
		`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: marking notifications read for %s: %w", userID, err)
	}
	return res.RowsAffected()
}
