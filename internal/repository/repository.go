package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/trueque/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a conditional update lost against a concurrent writer.
	ErrConflict = errors.New("repository: version conflict")
	// ErrDuplicate indicates a unique key already holds a row.
	ErrDuplicate = errors.New("repository: duplicate")
)

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Trades        *TradesRepository
	Users         *UsersRepository
	Posts         *PostsRepository
	Chats         *ChatsRepository
	Notifications *NotificationsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Trades:        &TradesRepository{pool: pool},
		Users:         &UsersRepository{pool: pool},
		Posts:         &PostsRepository{pool: pool},
		Chats:         &ChatsRepository{pool: pool},
		Notifications: &NotificationsRepository{pool: pool},
	}
}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
