package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/trueque/internal/domain"
)

// ChatsRepository manages the one-to-one chat threads between users.
type ChatsRepository struct {
	pool *pgxpool.Pool
}

// GetOrCreate returns the thread between two users, creating it on first use.
// The pair is unordered.
func (r *ChatsRepository) GetOrCreate(ctx context.Context, userA, userB string) (string, error) {
	const query = `
        INSERT INTO chats (user_low, user_high)
        VALUES (LEAST($1::uuid, $2::uuid), GREATEST($1::uuid, $2::uuid))
        ON CONFLICT (user_low, user_high) DO UPDATE SET updated_at = chats.updated_at
        RETURNING id
    `
	var id string
	if err := r.pool.QueryRow(ctx, query, userA, userB).Scan(&id); err != nil {
		return "", fmt.Errorf("get or create chat: %w", err)
	}
	return id, nil
}

// AppendSystemMessage posts an automated message to a thread and updates its
// last-message preview.
func (r *ChatsRepository) AppendSystemMessage(ctx context.Context, chatID, senderID, text string) (domain.ChatMessage, error) {
	msg := domain.ChatMessage{ChatID: chatID, SenderID: senderID, Text: text, System: true}
	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
            INSERT INTO chat_messages (chat_id, sender_id, text, is_system)
            VALUES ($1,$2,$3,true)
            RETURNING id, created_at
        `, chatID, senderID, text).Scan(&msg.ID, &msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chat message: %w", err)
		}
		tag, err := tx.Exec(ctx, `
            UPDATE chats
            SET last_message_text = $2, last_message_at = $3, updated_at = $3
            WHERE id = $1
        `, chatID, text, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("update chat preview: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// Messages lists a thread oldest first.
func (r *ChatsRepository) Messages(ctx context.Context, chatID string) ([]domain.ChatMessage, error) {
	rows, err := r.pool.Query(ctx, `
        SELECT id, chat_id, sender_id, text, is_system, created_at
        FROM chat_messages
        WHERE chat_id = $1
        ORDER BY created_at, id
    `, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var (
			m  domain.ChatMessage
			at time.Time
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.System, &at); err != nil {
			return nil, err
		}
		m.CreatedAt = at
		items = append(items, m)
	}
	return items, rows.Err()
}
