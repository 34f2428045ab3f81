package services

import (
	"context"
	"errors"
	"strings"

	"github.com/bookstore-api/apiserver/internal/store"
	"github.com/bookstore-api/apiserver/types"
	"github.com/google/uuid"
)

const (
	msgGenreNameRequired = "Genre name is required"
	msgGenreExists       = "Genre already exists"
	msgGenreNotFound     = "Genre not found"
	msgGenreHasBooks     = "Genre still has books"
)

// GenreRepository defines persistence operations for genres.
type GenreRepository interface {
	List(ctx context.Context) ([]types.Genre, error)
	Get(ctx context.Context, id uuid.UUID) (types.Genre, error)
	FindByName(ctx context.Context, name string) (types.Genre, error)
	Create(ctx context.Context, genre types.Genre) (types.Genre, error)
	Rename(ctx context.Context, id uuid.UUID, name string) (types.Genre, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// GenreService encapsulates genre use-cases.
type GenreService struct {
	repo   GenreRepository
	events *Events
}

func NewGenreService(repo GenreRepository, events *Events) *GenreService {
	return &GenreService{repo: repo, events: events}
}

// List returns all genres by name, each with its books.
func (s *GenreService) List(ctx context.Context) ([]types.Genre, error) {
	genres, err := s.repo.List(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	return genres, nil
}

func (s *GenreService) Create(ctx context.Context, name string) (types.Genre, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Genre{}, validationError(msgGenreNameRequired)
	}

	if _, err := s.repo.FindByName(ctx, name); err == nil {
		return types.Genre{}, conflictError(msgGenreExists)
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Genre{}, internalError(err)
	}

	genre, err := s.repo.Create(ctx, types.Genre{Name: name})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return types.Genre{}, conflictError(msgGenreExists)
		}
		return types.Genre{}, internalError(err)
	}

	s.events.Emit(ctx, EventGenreCreated, genre.ID)
	return genre, nil
}

func (s *GenreService) Update(ctx context.Context, id uuid.UUID, name string) (types.Genre, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Genre{}, validationError(msgGenreNameRequired)
	}

	if existing, err := s.repo.FindByName(ctx, name); err == nil {
		if existing.ID != id {
			return types.Genre{}, conflictError(msgGenreExists)
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.Genre{}, internalError(err)
	}

	genre, err := s.repo.Rename(ctx, id, name)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return types.Genre{}, notFoundError(msgGenreNotFound)
		case errors.Is(err, store.ErrConflict):
			return types.Genre{}, conflictError(msgGenreExists)
		default:
			return types.Genre{}, internalError(err)
		}
	}

	s.events.Emit(ctx, EventGenreUpdated, genre.ID)
	return genre, nil
}

// Delete removes a genre that no book references.
func (s *GenreService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return notFoundError(msgGenreNotFound)
		case errors.Is(err, store.ErrForeignKey):
			return conflictError(msgGenreHasBooks)
		default:
			return internalError(err)
		}
	}

	s.events.Emit(ctx, EventGenreDeleted, id)
	return nil
}
