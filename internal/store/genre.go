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

// GenreRepository handles persistence for genres.
type GenreRepository struct {
	db bun.IDB
}

func NewGenreRepository(db bun.IDB) *GenreRepository {
	return &GenreRepository{db: db}
}

// List returns every genre ordered by name, each with its books.
func (r *GenreRepository) List(ctx context.Context) ([]types.Genre, error) {
	genres := make([]types.Genre, 0)
	err := r.db.NewSelect().
		Model(&genres).
		Relation("Books", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("b.title ASC")
		}).
		Order("g.name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list genres: %w", err)
	}
	return genres, nil
}

func (r *GenreRepository) Get(ctx context.Context, id uuid.UUID) (types.Genre, error) {
	var genre types.Genre
	err := r.db.NewSelect().
		Model(&genre).
		Where("g.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Genre{}, ErrNotFound
		}
		return types.Genre{}, fmt.Errorf("failed to get genre: %w", err)
	}
	return genre, nil
}

func (r *GenreRepository) FindByName(ctx context.Context, name string) (types.Genre, error) {
	var genre types.Genre
	err := r.db.NewSelect().
		Model(&genre).
		Where("g.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Genre{}, ErrNotFound
		}
		return types.Genre{}, fmt.Errorf("failed to get genre by name: %w", err)
	}
	return genre, nil
}

// Create inserts a genre. A duplicate name yields ErrConflict.
func (r *GenreRepository) Create(ctx context.Context, genre types.Genre) (types.Genre, error) {
	now := time.Now().UTC()
	if genre.ID == uuid.Nil {
		genre.ID = uuid.New()
	}
	genre.CreatedAt = now
	genre.UpdatedAt = now

	if _, err := r.db.NewInsert().Model(&genre).Exec(ctx); err != nil {
		if translated := translateError(err); errors.Is(translated, ErrConflict) {
			return types.Genre{}, ErrConflict
		}
		return types.Genre{}, fmt.Errorf("failed to create genre: %w", err)
	}
	return genre, nil
}

// Rename changes the name of a genre and returns the stored row.
func (r *GenreRepository) Rename(ctx context.Context, id uuid.UUID, name string) (types.Genre, error) {
	result, err := r.db.NewUpdate().
		Model((*types.Genre)(nil)).
		Set("name = ?", name).
		Set("updated_at = ?", time.Now().UTC()).
		Where("g.id = ?", id).
		Exec(ctx)
	if err != nil {
		if translated := translateError(err); errors.Is(translated, ErrConflict) {
			return types.Genre{}, ErrConflict
		}
		return types.Genre{}, fmt.Errorf("failed to update genre: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return types.Genre{}, err
	}
	return r.Get(ctx, id)
}

// Delete removes a genre. A genre still referenced by books yields ErrForeignKey.
func (r *GenreRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewDelete().
		Model((*types.Genre)(nil)).
		Where("g.id = ?", id).
		Exec(ctx)
	if err != nil {
		if translated := translateError(err); errors.Is(translated, ErrForeignKey) {
			return ErrForeignKey
		}
		return fmt.Errorf("failed to delete genre: %w", err)
	}
	return requireAffected(result)
}
