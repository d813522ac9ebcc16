package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/trueque/internal/domain"
)

// UsersRepository keeps the per-user rating aggregate.
type UsersRepository struct {
	pool *pgxpool.Pool
}

// ApplyRating increments the aggregate of userID in one statement so
// concurrent ratings never lose an update. Users unknown to this service get
// a row on their first rating.
func (r *UsersRepository) ApplyRating(ctx context.Context, userID string, value int) (domain.RatingAggregate, error) {
	const query = `
        INSERT INTO users (id, rating_count, rating_total, rating_average)
        VALUES ($1, 1, $2::bigint, $2::numeric)
        ON CONFLICT (id) DO UPDATE
        SET rating_count   = users.rating_count + 1,
            rating_total   = users.rating_total + EXCLUDED.rating_total,
            rating_average = ROUND((users.rating_total + EXCLUDED.rating_total)::numeric / (users.rating_count + 1), 2),
            updated_at     = now()
        RETURNING id, rating_count, rating_total, rating_average::float8
    `
	var agg domain.RatingAggregate
	err := r.pool.QueryRow(ctx, query, userID, value).Scan(&agg.UserID, &agg.Count, &agg.Total, &agg.Average)
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("apply rating: %w", err)
	}
	return agg, nil
}

// GetRating returns the rating aggregate of a user. Users that were never
// rated read as a zero aggregate.
func (r *UsersRepository) GetRating(ctx context.Context, userID string) (domain.RatingAggregate, error) {
	const query = `
        SELECT id, rating_count, rating_total, rating_average::float8
        FROM users
        WHERE id = $1
    `
	agg := domain.RatingAggregate{UserID: userID}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&agg.UserID, &agg.Count, &agg.Total, &agg.Average)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RatingAggregate{UserID: userID}, nil
		}
		return domain.RatingAggregate{}, fmt.Errorf("get rating: %w", err)
	}
	return agg, nil
}

// Create inserts a user, doing nothing when it already exists.
func (r *UsersRepository) Create(ctx context.Context, id, displayName string) error {
	_, err := r.pool.Exec(ctx, `
        INSERT INTO users (id, display_name) VALUES ($1, $2)
        ON CONFLICT (id) DO NOTHING
    `, id, displayName)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
