package repo

import (
	"context"
	"database/sql"

	"taskdeck/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, tx *sql.Tx, n domain.Notification) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notifications(id,user_id,title,message,type,read,link_to,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, n.UserID, n.Title, n.Message, n.Type, n.Read, nullable(n.LinkTo), n.CreatedAt)
	return err
}

func (r Repo) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	query := `SELECT id,user_id,title,message,type,read,COALESCE(link_to,'') AS link_to,created_at FROM notifications WHERE user_id=? ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.LinkTo, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// MarkNotificationRead flips read for a single notification owned by userID.
func (r Repo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE user_id=? AND read=0`, userID)
	return err
}

func (r Repo) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE user_id=? AND read=0`, userID).Scan(&count)
	return count, err
}
