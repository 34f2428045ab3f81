package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/bookstore-api/apiserver/internal/logging"
	"github.com/bookstore-api/apiserver/internal/storage"
	"github.com/bookstore-api/apiserver/internal/store"
	"github.com/bookstore-api/apiserver/types"
	"github.com/google/uuid"
)

const (
	DefaultPageLimit = 5
	MaxPageLimit     = 100

	// MaxCoverBytes is the largest accepted cover image.
	MaxCoverBytes = 5 << 20
)

const (
	msgBookFieldsRequired = "Title, writer, price, stock_quantity and genre_id are required"
	msgBookTitleEmpty     = "Title must not be empty"
	msgBookWriterEmpty    = "Writer must not be empty"
	msgBookNegativePrice  = "Price must not be negative"
	msgBookNegativeStock  = "Stock quantity must not be negative"
	msgBookTitleExists    = "Book title already exists"
	msgBookGenreMissing   = "Genre does not exist"
	msgBookNotFound       = "Book not found"
	msgInvalidPage        = "Page must be a positive integer"
	msgInvalidLimit       = "Limit must be between 1 and 100"
	msgCoverNotFound      = "Cover not found"
	msgCoverType          = "Cover must be a jpeg, png, webp or gif image"
	msgCoverTooLarge      = "Cover image must be at most 5 MiB"
	msgCoverUnavailable   = "Cover storage not configured"
)

var coverExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context, filter store.BookFilter) ([]types.Book, int, error)
	Get(ctx context.Context, id uuid.UUID) (types.Book, error)
	FindByTitle(ctx context.Context, title string) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, id uuid.UUID, input types.BookInput) (types.Book, error)
	SetCover(ctx context.Context, id uuid.UUID, key *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CoverStore holds cover image objects.
type CoverStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// BookPage is one page of a book listing.
type BookPage struct {
	Items []types.Book `json:"items"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
	Total int          `json:"total"`
}

// Cover is an opened cover image. The caller closes Body.
type Cover struct {
	Body        io.ReadCloser
	ContentType string
}

// BookService encapsulates book use-cases.
type BookService struct {
	repo   BookRepository
	covers CoverStore
	events *Events
}

// NewBookService constructs a BookService. covers may be nil, in which case
// cover operations fail with a configuration error.
func NewBookService(repo BookRepository, covers CoverStore, events *Events) *BookService {
	return &BookService{repo: repo, covers: covers, events: events}
}

// List returns books whose title contains title, newest first.
func (s *BookService) List(ctx context.Context, title string, page, limit int) (BookPage, error) {
	if page < 1 {
		return BookPage{}, validationError(msgInvalidPage)
	}
	if limit < 1 || limit > MaxPageLimit {
		return BookPage{}, validationError(msgInvalidLimit)
	}
	// The offset must fit in an int.
	if page-1 > math.MaxInt/limit {
		return BookPage{}, validationError(msgInvalidPage)
	}

	books, total, err := s.repo.List(ctx, store.BookFilter{
		Title:  title,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return BookPage{}, internalError(err)
	}

	return BookPage{Items: books, Page: page, Limit: limit, Total: total}, nil
}

func (s *BookService) Get(ctx context.Context, id uuid.UUID) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Book{}, notFoundError(msgBookNotFound)
		}
		return types.Book{}, internalError(err)
	}
	return book, nil
}

func (s *BookService) Create(ctx context.Context, input types.BookInput) (types.Book, error) {
	input = normalizeBookInput(input)
	if input.Title == nil || input.Writer == nil || input.Price == nil ||
		input.StockQuantity == nil || input.GenreID == nil ||
		*input.Title == "" || *input.Writer == "" {
		return types.Book{}, validationError(msgBookFieldsRequired)
	}
	if err := validateBookInput(input); err != nil {
		return types.Book{}, err
	}
	if err := s.ensureTitleFree(ctx, *input.Title, uuid.Nil); err != nil {
		return types.Book{}, err
	}

	book, err := s.repo.Create(ctx, types.Book{
		Title:           *input.Title,
		Writer:          *input.Writer,
		Publisher:       input.Publisher,
		PublicationYear: input.PublicationYear,
		Description:     input.Description,
		Price:           *input.Price,
		StockQuantity:   *input.StockQuantity,
		GenreID:         *input.GenreID,
	})
	if err != nil {
		return types.Book{}, mapBookWriteError(err)
	}

	s.events.Emit(ctx, EventBookCreated, book.ID)
	return book, nil
}

// Update applies the fields set in input. An empty input returns the book unchanged.
func (s *BookService) Update(ctx context.Context, id uuid.UUID, input types.BookInput) (types.Book, error) {
	input = normalizeBookInput(input)
	if input.Title != nil && *input.Title == "" {
		return types.Book{}, validationError(msgBookTitleEmpty)
	}
	if input.Writer != nil && *input.Writer == "" {
		return types.Book{}, validationError(msgBookWriterEmpty)
	}
	if err := validateBookInput(input); err != nil {
		return types.Book{}, err
	}
	if input.Empty() {
		return s.Get(ctx, id)
	}
	if input.Title != nil {
		if err := s.ensureTitleFree(ctx, *input.Title, id); err != nil {
			return types.Book{}, err
		}
	}

	book, err := s.repo.Update(ctx, id, input)
	if err != nil {
		return types.Book{}, mapBookWriteError(err)
	}

	s.events.Emit(ctx, EventBookUpdated, book.ID)
	return book, nil
}

// Delete removes a book and, best effort, its cover object.
func (s *BookService) Delete(ctx context.Context, id uuid.UUID) error {
	book, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError(msgBookNotFound)
		}
		return internalError(err)
	}

	if book.CoverKey != nil {
		s.removeCover(ctx, *book.CoverKey)
	}

	s.events.Emit(ctx, EventBookDeleted, id)
	return nil
}

// UploadCover stores r as the cover image of the book and returns the updated book.
func (s *BookService) UploadCover(ctx context.Context, id uuid.UUID, r io.Reader, size int64, contentType string) (types.Book, error) {
	if s.covers == nil {
		return types.Book{}, configError(msgCoverUnavailable, nil)
	}

	ext, ok := coverExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return types.Book{}, validationError(msgCoverType)
	}
	if size > MaxCoverBytes {
		return types.Book{}, tooLargeError(msgCoverTooLarge)
	}

	book, err := s.Get(ctx, id)
	if err != nil {
		return types.Book{}, err
	}

	key := CoverKey(id, ext)
	if err := s.covers.Put(ctx, key, r, size, contentType); err != nil {
		return types.Book{}, internalError(fmt.Errorf("failed to upload cover: %w", err))
	}

	if err := s.repo.SetCover(ctx, id, &key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.removeCover(ctx, key)
			return types.Book{}, notFoundError(msgBookNotFound)
		}
		return types.Book{}, internalError(err)
	}

	if book.CoverKey != nil && *book.CoverKey != key {
		s.removeCover(ctx, *book.CoverKey)
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return types.Book{}, err
	}

	s.events.Emit(ctx, EventBookUpdated, id)
	return updated, nil
}

// Cover opens the cover image of the book.
func (s *BookService) Cover(ctx context.Context, id uuid.UUID) (Cover, error) {
	if s.covers == nil {
		return Cover{}, configError(msgCoverUnavailable, nil)
	}

	book, err := s.Get(ctx, id)
	if err != nil {
		return Cover{}, err
	}
	if book.CoverKey == nil {
		return Cover{}, notFoundError(msgCoverNotFound)
	}

	body, err := s.covers.Get(ctx, *book.CoverKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Cover{}, notFoundError(msgCoverNotFound)
		}
		return Cover{}, internalError(fmt.Errorf("failed to open cover: %w", err))
	}

	return Cover{Body: body, ContentType: coverContentType(*book.CoverKey)}, nil
}

// CoverKey is the object key of a book cover with the given extension.
func CoverKey(bookID uuid.UUID, ext string) string {
	return fmt.Sprintf("books/%s/cover%s", bookID, ext)
}

func coverContentType(key string) string {
	for contentType, ext := range coverExtensions {
		if strings.HasSuffix(key, ext) {
			return contentType
		}
	}
	return "application/octet-stream"
}

func (s *BookService) removeCover(ctx context.Context, key string) {
	if s.covers == nil {
		return
	}
	if err := s.covers.Delete(ctx, key); err != nil {
		logging.FromContext(ctx).Warn("failed to remove cover object", "key", key, "error", err)
	}
}

func (s *BookService) ensureTitleFree(ctx context.Context, title string, self uuid.UUID) error {
	existing, err := s.repo.FindByTitle(ctx, title)
	if err == nil {
		if existing.ID != self {
			return conflictError(msgBookTitleExists)
		}
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return internalError(err)
	}
	return nil
}

func normalizeBookInput(input types.BookInput) types.BookInput {
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		input.Title = &title
	}
	if input.Writer != nil {
		writer := strings.TrimSpace(*input.Writer)
		input.Writer = &writer
	}
	return input
}

func validateBookInput(input types.BookInput) error {
	if input.Price != nil && *input.Price < 0 {
		return validationError(msgBookNegativePrice)
	}
	if input.StockQuantity != nil && *input.StockQuantity < 0 {
		return validationError(msgBookNegativeStock)
	}
	return nil
}

func mapBookWriteError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFoundError(msgBookNotFound)
	case errors.Is(err, store.ErrConflict):
		return conflictError(msgBookTitleExists)
	case errors.Is(err, store.ErrForeignKey):
		return validationError(msgBookGenreMissing)
	default:
		return internalError(err)
	}
}
