package handlers

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bookstore-api/apiserver/internal/auth"
	"github.com/bookstore-api/apiserver/internal/services"
	"github.com/bookstore-api/apiserver/internal/store"
	"github.com/bookstore-api/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const testSecret = "handler-test-secret"

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[uuid.UUID]types.User)}
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) FindByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUsers) Insert(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	m.users[user.ID] = user
	return user, nil
}

type memGenres struct {
	genres map[uuid.UUID]types.Genre
}

func (m *memGenres) List(ctx context.Context) ([]types.Genre, error) {
	out := make([]types.Genre, 0, len(m.genres))
	for _, genre := range m.genres {
		out = append(out, genre)
	}
	return out, nil
}

func (m *memGenres) Get(ctx context.Context, id uuid.UUID) (types.Genre, error) {
	genre, ok := m.genres[id]
	if !ok {
		return types.Genre{}, store.ErrNotFound
	}
	return genre, nil
}

func (m *memGenres) FindByName(ctx context.Context, name string) (types.Genre, error) {
	for _, genre := range m.genres {
		if genre.Name == name {
			return genre, nil
		}
	}
	return types.Genre{}, store.ErrNotFound
}

func (m *memGenres) Create(ctx context.Context, genre types.Genre) (types.Genre, error) {
	genre.ID = uuid.New()
	genre.CreatedAt = time.Now().UTC()
	genre.UpdatedAt = genre.CreatedAt
	m.genres[genre.ID] = genre
	return genre, nil
}

func (m *memGenres) Rename(ctx context.Context, id uuid.UUID, name string) (types.Genre, error) {
	genre, ok := m.genres[id]
	if !ok {
		return types.Genre{}, store.ErrNotFound
	}
	genre.Name = name
	m.genres[id] = genre
	return genre, nil
}

func (m *memGenres) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.genres[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.genres, id)
	return nil
}

type memBooks struct {
	genres *memGenres
	books  map[uuid.UUID]types.Book
	filter store.BookFilter
}

func (m *memBooks) List(ctx context.Context, filter store.BookFilter) ([]types.Book, int, error) {
	m.filter = filter
	out := make([]types.Book, 0)
	for _, book := range m.books {
		if strings.Contains(book.Title, filter.Title) {
			out = append(out, book)
		}
	}
	return out, len(out), nil
}

func (m *memBooks) Get(ctx context.Context, id uuid.UUID) (types.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return book, nil
}

func (m *memBooks) FindByTitle(ctx context.Context, title string) (types.Book, error) {
	for _, book := range m.books {
		if book.Title == title {
			return book, nil
		}
	}
	return types.Book{}, store.ErrNotFound
}

func (m *memBooks) Create(ctx context.Context, book types.Book) (types.Book, error) {
	genre, ok := m.genres.genres[book.GenreID]
	if !ok {
		return types.Book{}, store.ErrForeignKey
	}
	book.ID = uuid.New()
	book.Genre = &genre
	m.books[book.ID] = book
	return book, nil
}

func (m *memBooks) Update(ctx context.Context, id uuid.UUID, input types.BookInput) (types.Book, error) {
	book, ok := m.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	if input.Title != nil {
		book.Title = *input.Title
	}
	if input.StockQuantity != nil {
		book.StockQuantity = *input.StockQuantity
	}
	m.books[id] = book
	return book, nil
}

func (m *memBooks) SetCover(ctx context.Context, id uuid.UUID, key *string) error {
	book, ok := m.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.CoverKey = key
	m.books[id] = book
	return nil
}

func (m *memBooks) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.books, id)
	return nil
}

type testAPI struct {
	router http.Handler
	users  *memUsers
	genres *memGenres
	books  *memBooks
	tokens *auth.TokenIssuer
}

func newTestAPI(secret string, covers services.CoverStore) *testAPI {
	users := newMemUsers()
	genres := &memGenres{genres: map[uuid.UUID]types.Genre{}}
	books := &memBooks{genres: genres, books: map[uuid.UUID]types.Book{}}
	tokens := auth.NewTokenIssuer(secret, time.Hour)
	requireAuth := RequireAuth(tokens)

	r := chi.NewRouter()
	r.Get("/healthz", Health)
	r.Route("/auth", func(r chi.Router) {
		AuthRouter(r, services.NewAuthService(users, tokens), requireAuth)
	})
	r.Route("/genres", func(r chi.Router) {
		GenreRouter(r, services.NewGenreService(genres, nil), requireAuth)
	})
	r.Route("/books", func(r chi.Router) {
		BookRouter(r, services.NewBookService(books, covers, nil), requireAuth, covers != nil)
	})

	return &testAPI{router: r, users: users, genres: genres, books: books, tokens: tokens}
}
