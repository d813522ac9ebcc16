package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/trueque/internal/domain"
)

// PostsRepository reads listings from the local posts table. It serves as
// the post resolver when no external posts service is configured.
type PostsRepository struct {
	pool *pgxpool.Pool
}

// PostCreateParams captures the fields needed to insert a post.
type PostCreateParams struct {
	ID      string
	OwnerID string
	Title   string
	Barrio  string
}

// Resolve looks up a post. A missing row is reported through Exists=false
// rather than an error.
func (r *PostsRepository) Resolve(ctx context.Context, id string) (domain.PostInfo, error) {
	const query = `
        SELECT owner_id, title, barrio, deleted_at
        FROM posts
        WHERE id = $1
    `
	var (
		ownerID   *string
		deletedAt *time.Time
	)
	info := domain.PostInfo{ID: id}
	err := r.pool.QueryRow(ctx, query, id).Scan(&ownerID, &info.Title, &info.Barrio, &deletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return info, nil
		}
		return domain.PostInfo{}, fmt.Errorf("resolve post: %w", err)
	}
	info.Exists = true
	info.Deleted = deletedAt != nil
	info.OwnerID = derefString(ownerID)
	return info, nil
}

// Create inserts a post and returns its id.
func (r *PostsRepository) Create(ctx context.Context, params PostCreateParams) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
        INSERT INTO posts (id, owner_id, title, barrio)
        VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4)
        RETURNING id
    `, nullableString(params.ID), nullableString(params.OwnerID), params.Title, params.Barrio).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create post: %w", err)
	}
	return id, nil
}

// SoftDelete marks a post as deleted.
func (r *PostsRepository) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE posts SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
