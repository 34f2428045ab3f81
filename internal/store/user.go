package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bookstore-api/apiserver/types"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db bun.IDB
}

func NewUserRepository(db bun.IDB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns the user registered with the exact email, or ErrNotFound.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := r.db.NewSelect().
		Model(&user).
		Where("u.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// FindByID returns the user with the given id, or ErrNotFound.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	var user types.User
	err := r.db.NewSelect().
		Model(&user).
		Where("u.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, fmt.Errorf("failed to get user by id: %w", err)
	}
	return user, nil
}

// Insert stores a new user, assigning the id and creation time when unset.
// A duplicate email yields ErrConflict.
func (r *UserRepository) Insert(ctx context.Context, user types.User) (types.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.NewInsert().Model(&user).Exec(ctx); err != nil {
		if translated := translateError(err); errors.Is(translated, ErrConflict) {
			return types.User{}, ErrConflict
		}
		return types.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}
