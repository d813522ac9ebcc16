package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/trueque/internal/domain"
)

// NotificationsRepository stores per-user notifications.
type NotificationsRepository struct {
	pool *pgxpool.Pool
}

// Enqueue stores a notification and returns it with its id and timestamp.
func (r *NotificationsRepository) Enqueue(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	err := r.pool.QueryRow(ctx, `
        INSERT INTO notifications (user_id, type, title, message, link)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at
    `, n.UserID, string(n.Type), n.Title, n.Message, n.Link).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return domain.Notification{}, fmt.Errorf("enqueue notification: %w", err)
	}
	return n, nil
}

// ListForUser returns the newest notifications of a user.
func (r *NotificationsRepository) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
        SELECT id, user_id, type, title, message, link, created_at, read_at
        FROM notifications
        WHERE user_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n   domain.Notification
			typ string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Message, &n.Link, &n.CreatedAt, &n.ReadAt); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		items = append(items, n)
	}
	return items, rows.Err()
}
