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

// BookFilter narrows a book listing.
type BookFilter struct {
	// Title keeps books whose title contains it (case-sensitive). Empty matches all.
	Title  string
	Offset int
	Limit  int
}

// BookRepository handles persistence for books.
type BookRepository struct {
	db bun.IDB
}

func NewBookRepository(db bun.IDB) *BookRepository {
	return &BookRepository{db: db}
}

// List returns one page of books, newest first, and the total number of matches.
func (r *BookRepository) List(ctx context.Context, filter BookFilter) ([]types.Book, int, error) {
	books := make([]types.Book, 0)

	q := r.db.NewSelect().
		Model(&books).
		Relation("Genre")
	if filter.Title != "" {
		q = q.Where("strpos(b.title, ?) > 0", filter.Title)
	}

	total, err := q.Count(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count books: %w", err)
	}

	err = q.Order("b.created_at DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Scan(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}

	return books, total, nil
}

func (r *BookRepository) Get(ctx context.Context, id uuid.UUID) (types.Book, error) {
	var book types.Book
	err := r.db.NewSelect().
		Model(&book).
		Relation("Genre").
		Where("b.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

func (r *BookRepository) FindByTitle(ctx context.Context, title string) (types.Book, error) {
	var book types.Book
	err := r.db.NewSelect().
		Model(&book).
		Where("b.title = ?", title).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, fmt.Errorf("failed to get book by title: %w", err)
	}
	return book, nil
}

// Create inserts a book and returns it with its genre loaded.
// A duplicate title yields ErrConflict, an unknown genre ErrForeignKey.
func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now().UTC()
	if book.ID == uuid.Nil {
		book.ID = uuid.New()
	}
	book.CreatedAt = now
	book.UpdatedAt = now
	book.Genre = nil

	if _, err := r.db.NewInsert().Model(&book).Exec(ctx); err != nil {
		if translated := translateError(err); translated != err {
			return types.Book{}, translated
		}
		return types.Book{}, fmt.Errorf("failed to create book: %w", err)
	}
	return r.Get(ctx, book.ID)
}

// Update applies the non-nil fields of input and returns the stored book.
func (r *BookRepository) Update(ctx context.Context, id uuid.UUID, input types.BookInput) (types.Book, error) {
	q := r.db.NewUpdate().
		Model((*types.Book)(nil)).
		Where("b.id = ?", id).
		Set("updated_at = ?", time.Now().UTC())

	if input.Title != nil {
		q = q.Set("title = ?", *input.Title)
	}
	if input.Writer != nil {
		q = q.Set("writer = ?", *input.Writer)
	}
	if input.Publisher != nil {
		q = q.Set("publisher = ?", *input.Publisher)
	}
	if input.PublicationYear != nil {
		q = q.Set("publication_year = ?", *input.PublicationYear)
	}
	if input.Description != nil {
		q = q.Set("description = ?", *input.Description)
	}
	if input.Price != nil {
		q = q.Set("price = ?", *input.Price)
	}
	if input.StockQuantity != nil {
		q = q.Set("stock_quantity = ?", *input.StockQuantity)
	}
	if input.GenreID != nil {
		q = q.Set("genre_id = ?", *input.GenreID)
	}

	result, err := q.Exec(ctx)
	if err != nil {
		if translated := translateError(err); translated != err {
			return types.Book{}, translated
		}
		return types.Book{}, fmt.Errorf("failed to update book: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return types.Book{}, err
	}
	return r.Get(ctx, id)
}

// SetCover records the storage key of the book's cover. A nil key clears it.
func (r *BookRepository) SetCover(ctx context.Context, id uuid.UUID, key *string) error {
	result, err := r.db.NewUpdate().
		Model((*types.Book)(nil)).
		Set("cover_key = ?", key).
		Set("updated_at = ?", time.Now().UTC()).
		Where("b.id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set book cover: %w", err)
	}
	return requireAffected(result)
}

func (r *BookRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.NewDelete().
		Model((*types.Book)(nil)).
		Where("b.id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return requireAffected(result)
}

// requireAffected turns a write that matched no rows into ErrNotFound.
func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
