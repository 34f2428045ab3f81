package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bookstore-api/apiserver/internal/storage"
	"github.com/bookstore-api/apiserver/internal/store"
	"github.com/bookstore-api/apiserver/types"
	"github.com/google/uuid"
)

var errBoom = errors.New("boom")

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]types.User

	// hideOnLookup makes FindByEmail miss, simulating a concurrent registration
	// that lands between the existence check and the insert.
	hideOnLookup bool
	findErr      error
	insertErr    error
	inserts      int
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]types.User)}
}

func (f *fakeUserStore) FindByEmail(ctx context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return types.User{}, f.findErr
	}
	if f.hideOnLookup {
		return types.User{}, store.ErrNotFound
	}
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserStore) FindByID(ctx context.Context, id uuid.UUID) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return types.User{}, f.findErr
	}
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserStore) Insert(ctx context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return types.User{}, f.insertErr
	}
	for _, existing := range f.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	f.users[user.ID] = user
	return user, nil
}

type fakeSigner struct {
	configured bool
	err        error
	issued     []uuid.UUID
}

func (f *fakeSigner) Configured() bool { return f.configured }

func (f *fakeSigner) Issue(userID uuid.UUID, email string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.issued = append(f.issued, userID)
	return "token-for-" + email, nil
}

type fakeGenreRepo struct {
	genres   map[uuid.UUID]types.Genre
	withBook map[uuid.UUID]bool
	listErr  error
}

func newFakeGenreRepo() *fakeGenreRepo {
	return &fakeGenreRepo{genres: map[uuid.UUID]types.Genre{}, withBook: map[uuid.UUID]bool{}}
}

func (f *fakeGenreRepo) List(ctx context.Context) ([]types.Genre, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	genres := make([]types.Genre, 0, len(f.genres))
	for _, genre := range f.genres {
		genres = append(genres, genre)
	}
	sort.Slice(genres, func(i, j int) bool { return genres[i].Name < genres[j].Name })
	return genres, nil
}

func (f *fakeGenreRepo) Get(ctx context.Context, id uuid.UUID) (types.Genre, error) {
	genre, ok := f.genres[id]
	if !ok {
		return types.Genre{}, store.ErrNotFound
	}
	return genre, nil
}

func (f *fakeGenreRepo) FindByName(ctx context.Context, name string) (types.Genre, error) {
	for _, genre := range f.genres {
		if genre.Name == name {
			return genre, nil
		}
	}
	return types.Genre{}, store.ErrNotFound
}

func (f *fakeGenreRepo) Create(ctx context.Context, genre types.Genre) (types.Genre, error) {
	if _, err := f.FindByName(ctx, genre.Name); err == nil {
		return types.Genre{}, store.ErrConflict
	}
	genre.ID = uuid.New()
	genre.CreatedAt = time.Now().UTC()
	genre.UpdatedAt = genre.CreatedAt
	f.genres[genre.ID] = genre
	return genre, nil
}

func (f *fakeGenreRepo) Rename(ctx context.Context, id uuid.UUID, name string) (types.Genre, error) {
	genre, ok := f.genres[id]
	if !ok {
		return types.Genre{}, store.ErrNotFound
	}
	genre.Name = name
	f.genres[id] = genre
	return genre, nil
}

func (f *fakeGenreRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.genres[id]; !ok {
		return store.ErrNotFound
	}
	if f.withBook[id] {
		return store.ErrForeignKey
	}
	delete(f.genres, id)
	return nil
}

type fakeBookRepo struct {
	books      map[uuid.UUID]types.Book
	genres     map[uuid.UUID]types.Genre
	lastFilter store.BookFilter
}

func newFakeBookRepo(genres ...types.Genre) *fakeBookRepo {
	repo := &fakeBookRepo{books: map[uuid.UUID]types.Book{}, genres: map[uuid.UUID]types.Genre{}}
	for _, genre := range genres {
		repo.genres[genre.ID] = genre
	}
	return repo
}

func (f *fakeBookRepo) List(ctx context.Context, filter store.BookFilter) ([]types.Book, int, error) {
	f.lastFilter = filter
	matches := make([]types.Book, 0)
	for _, book := range f.books {
		if strings.Contains(book.Title, filter.Title) {
			matches = append(matches, book)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })
	total := len(matches)
	if filter.Offset >= total {
		return []types.Book{}, total, nil
	}
	end := min(filter.Offset+filter.Limit, total)
	return matches[filter.Offset:end], total, nil
}

func (f *fakeBookRepo) Get(ctx context.Context, id uuid.UUID) (types.Book, error) {
	book, ok := f.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	if genre, ok := f.genres[book.GenreID]; ok {
		book.Genre = &genre
	}
	return book, nil
}

func (f *fakeBookRepo) FindByTitle(ctx context.Context, title string) (types.Book, error) {
	for _, book := range f.books {
		if book.Title == title {
			return book, nil
		}
	}
	return types.Book{}, store.ErrNotFound
}

func (f *fakeBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	if _, ok := f.genres[book.GenreID]; !ok {
		return types.Book{}, store.ErrForeignKey
	}
	if _, err := f.FindByTitle(ctx, book.Title); err == nil {
		return types.Book{}, store.ErrConflict
	}
	book.ID = uuid.New()
	book.CreatedAt = time.Now().UTC().Add(time.Duration(len(f.books)) * time.Millisecond)
	book.UpdatedAt = book.CreatedAt
	f.books[book.ID] = book
	return f.Get(ctx, book.ID)
}

func (f *fakeBookRepo) Update(ctx context.Context, id uuid.UUID, input types.BookInput) (types.Book, error) {
	book, ok := f.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	if input.GenreID != nil {
		if _, ok := f.genres[*input.GenreID]; !ok {
			return types.Book{}, store.ErrForeignKey
		}
		book.GenreID = *input.GenreID
	}
	if input.Title != nil {
		book.Title = *input.Title
	}
	if input.Writer != nil {
		book.Writer = *input.Writer
	}
	if input.Publisher != nil {
		book.Publisher = input.Publisher
	}
	if input.PublicationYear != nil {
		book.PublicationYear = input.PublicationYear
	}
	if input.Description != nil {
		book.Description = input.Description
	}
	if input.Price != nil {
		book.Price = *input.Price
	}
	if input.StockQuantity != nil {
		book.StockQuantity = *input.StockQuantity
	}
	f.books[id] = book
	return f.Get(ctx, id)
}

func (f *fakeBookRepo) SetCover(ctx context.Context, id uuid.UUID, key *string) error {
	book, ok := f.books[id]
	if !ok {
		return store.ErrNotFound
	}
	book.CoverKey = key
	f.books[id] = book
	return nil
}

func (f *fakeBookRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.books, id)
	return nil
}

type fakeCovers struct {
	objects   map[string][]byte
	deleteErr error
	deleted   []string
}

func newFakeCovers() *fakeCovers {
	return &fakeCovers{objects: map[string][]byte{}}
}

func (f *fakeCovers) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	return nil
}

func (f *fakeCovers) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeCovers) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

type publishedEvent struct {
	channel string
	event   CatalogEvent
	attrs   map[string]string
}

type recordingPublisher struct {
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	var event CatalogEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return "", err
	}
	p.events = append(p.events, publishedEvent{channel: channel, event: event, attrs: attrs})
	return "msg-1", nil
}

func (p *recordingPublisher) types() []string {
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Type)
	}
	return out
}
