package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/trueque/internal/domain"
)

// TradesRepository persists trades together with their history and ratings.
type TradesRepository struct {
	pool *pgxpool.Pool
}

const tradeColumns = `
    id,
    proposer_id,
    receiver_id,
    post_requested_id,
    post_offered_id,
    items_text,
    status,
    chat_id,
    meeting_area,
    version,
    created_at,
    updated_at
`

// TradeRole selects which side of the trade the listing user is on.
type TradeRole string

const (
	// RoleInbox lists trades received by the user.
	RoleInbox TradeRole = "inbox"
	// RoleSent lists trades proposed by the user.
	RoleSent TradeRole = "sent"
)

// TradeListFilters encapsulates list filtering and offset pagination.
type TradeListFilters struct {
	UserID string
	Role   TradeRole
	Status *domain.Status
	Offset int
	Limit  int
}

// Create inserts a new trade and its initial history.
func (r *TradesRepository) Create(ctx context.Context, t domain.Trade) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO trades (id, proposer_id, receiver_id, post_requested_id, post_offered_id,
                                items_text, status, chat_id, meeting_area, version, created_at, updated_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        `, t.ID, t.ProposerID, t.ReceiverID, t.PostRequestedID, t.PostOfferedID,
			t.ItemsText, string(t.Status), nullableString(t.ChatID), t.MeetingArea, t.Version, t.CreatedAt, t.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
		for seq, entry := range t.History() {
			if err := insertHistory(ctx, tx, t.ID, seq, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID fetches a trade with its history and ratings.
func (r *TradesRepository) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE id = $1`, tradeColumns)
	t, err := scanTrade(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, ErrNotFound
		}
		return domain.Trade{}, err
	}
	trades, err := r.hydrate(ctx, []domain.Trade{t})
	if err != nil {
		return domain.Trade{}, err
	}
	return trades[0], nil
}

// List returns one page of trades, newest first.
func (r *TradesRepository) List(ctx context.Context, filters TradeListFilters) ([]domain.Trade, error) {
	where, args, err := tradeWhere(filters)
	if err != nil {
		return nil, err
	}
	if filters.Limit <= 0 {
		filters.Limit = 10
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM trades WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		tradeColumns, where, filters.Limit, filters.Offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.hydrate(ctx, items)
}

// Count returns how many trades match the filters, ignoring pagination.
func (r *TradesRepository) Count(ctx context.Context, filters TradeListFilters) (int, error) {
	where, args, err := tradeWhere(filters)
	if err != nil {
		return 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM trades WHERE `+where, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count trades: %w", err)
	}
	return total, nil
}

// Save persists a transition: the mutable trade fields plus the new history
// entry. The update only applies when the stored version still equals
// t.Version; otherwise ErrConflict is returned. The returned trade carries
// the bumped version.
func (r *TradesRepository) Save(ctx context.Context, t domain.Trade, entry domain.HistoryEntry) (domain.Trade, error) {
	seq := len(t.History()) - 1
	if seq < 1 {
		return domain.Trade{}, fmt.Errorf("save trade %s: no transition to persist", t.ID)
	}

	err := withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var version int
		err := tx.QueryRow(ctx, `
            UPDATE trades
            SET status = $3,
                items_text = $4,
                post_offered_id = $5,
                updated_at = $6,
                version = version + 1
            WHERE id = $1 AND version = $2
            RETURNING version
        `, t.ID, t.Version, string(t.Status), t.ItemsText, t.PostOfferedID, t.UpdatedAt).Scan(&version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrConflict
			}
			return fmt.Errorf("update trade: %w", err)
		}
		if err := insertHistory(ctx, tx, t.ID, seq, entry); err != nil {
			return err
		}
		t.Version = version
		return nil
	})
	if err != nil {
		return domain.Trade{}, err
	}
	return t, nil
}

// AttachChat records the chat thread provisioned for a trade.
func (r *TradesRepository) AttachChat(ctx context.Context, tradeID, chatID string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE trades SET chat_id = $2 WHERE id = $1`, tradeID, chatID)
	if err != nil {
		return fmt.Errorf("attach chat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRating stores a rating. A second rating by the same user on the same
// trade returns ErrDuplicate.
func (r *TradesRepository) AddRating(ctx context.Context, tradeID string, rating domain.Rating) error {
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
            INSERT INTO trade_ratings (trade_id, by_user, to_user, value, at)
            VALUES ($1,$2,$3,$4,$5)
            ON CONFLICT (trade_id, by_user) DO NOTHING
        `, tradeID, rating.By, rating.To, rating.Value, rating.At)
		if err != nil {
			return fmt.Errorf("insert rating: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicate
		}
		if _, err := tx.Exec(ctx, `UPDATE trades SET updated_at = $2 WHERE id = $1`, tradeID, rating.At); err != nil {
			return fmt.Errorf("touch trade: %w", err)
		}
		return nil
	})
}

func tradeWhere(filters TradeListFilters) (string, []interface{}, error) {
	where := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	switch filters.Role {
	case RoleInbox:
		where = append(where, "receiver_id = "+arg(filters.UserID))
	case RoleSent:
		where = append(where, "proposer_id = "+arg(filters.UserID))
	default:
		return "", nil, fmt.Errorf("unknown trade role %q", filters.Role)
	}
	if filters.Status != nil {
		where = append(where, "status = "+arg(string(*filters.Status)))
	}
	return strings.Join(where, " AND "), args, nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, tradeID string, seq int, e domain.HistoryEntry) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO trade_history (trade_id, seq, at, by_user, action, from_status, to_status, note)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, tradeID, seq, e.At, e.By, string(e.Action), nullableString(string(e.From)), nullableString(string(e.To)), e.Note)
	if err != nil {
		return fmt.Errorf("insert history %d: %w", seq, err)
	}
	return nil
}

// hydrate loads history and ratings for the given trades in two queries.
func (r *TradesRepository) hydrate(ctx context.Context, trades []domain.Trade) ([]domain.Trade, error) {
	if len(trades) == 0 {
		return trades, nil
	}
	ids := make([]string, len(trades))
	for i, t := range trades {
		ids[i] = t.ID
	}

	history := make(map[string][]domain.HistoryEntry, len(trades))
	rows, err := r.pool.Query(ctx, `
        SELECT trade_id, at, by_user, action, from_status, to_status, note
        FROM trade_history
        WHERE trade_id = ANY($1::uuid[])
        ORDER BY trade_id, seq
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	for rows.Next() {
		var (
			tradeID    string
			entry      domain.HistoryEntry
			action     string
			fromStatus *string
			toStatus   *string
		)
		if err := rows.Scan(&tradeID, &entry.At, &entry.By, &action, &fromStatus, &toStatus, &entry.Note); err != nil {
			rows.Close()
			return nil, err
		}
		entry.Action = domain.HistoryAction(action)
		entry.From = domain.Status(derefString(fromStatus))
		entry.To = domain.Status(derefString(toStatus))
		history[tradeID] = append(history[tradeID], entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ratings := make(map[string][]domain.Rating, len(trades))
	rows, err = r.pool.Query(ctx, `
        SELECT trade_id, by_user, to_user, value, at
        FROM trade_ratings
        WHERE trade_id = ANY($1::uuid[])
        ORDER BY trade_id, at
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			tradeID string
			rating  domain.Rating
		)
		if err := rows.Scan(&tradeID, &rating.By, &rating.To, &rating.Value, &rating.At); err != nil {
			return nil, err
		}
		ratings[tradeID] = append(ratings[tradeID], rating)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Trade, len(trades))
	for i, t := range trades {
		out[i] = domain.RestoreTrade(t, history[t.ID], ratings[t.ID])
	}
	return out, nil
}

func scanTrade(row pgx.Row) (domain.Trade, error) {
	var (
		t         domain.Trade
		status    string
		chatID    *string
		createdAt time.Time
		updatedAt time.Time
	)
	err := row.Scan(
		&t.ID,
		&t.ProposerID,
		&t.ReceiverID,
		&t.PostRequestedID,
		&t.PostOfferedID,
		&t.ItemsText,
		&status,
		&chatID,
		&t.MeetingArea,
		&t.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.Status(status)
	t.ChatID = derefString(chatID)
	t.CreatedAt = createdAt
	t.UpdatedAt = updatedAt
	return t, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
