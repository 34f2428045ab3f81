package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenreCreate(t *testing.T) {
	repo := newFakeGenreRepo()
	publisher := &recordingPublisher{}
	svc := NewGenreService(repo, NewEvents(publisher, "catalog-events"))
	ctx := context.Background()

	genre, err := svc.Create(ctx, "  Fantasy ")
	require.NoError(t, err)
	assert.Equal(t, "Fantasy", genre.Name)
	assert.Equal(t, []string{EventGenreCreated}, publisher.types())

	_, err = svc.Create(ctx, "Fantasy")
	requireKind(t, err, KindConflict, "Genre already exists")

	_, err = svc.Create(ctx, "   ")
	requireKind(t, err, KindValidation, "Genre name is required")
}

func TestGenreList(t *testing.T) {
	repo := newFakeGenreRepo()
	svc := NewGenreService(repo, nil)
	ctx := context.Background()

	for _, name := range []string{"Poetry", "Drama", "Horror"} {
		_, err := svc.Create(ctx, name)
		require.NoError(t, err)
	}

	genres, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, genres, 3)
	assert.Equal(t, "Drama", genres[0].Name)
	assert.Equal(t, "Poetry", genres[2].Name)

	repo.listErr = errBoom
	_, err = svc.List(ctx)
	requireKind(t, err, KindInternal, "Internal server error")
}

func TestGenreUpdate(t *testing.T) {
	repo := newFakeGenreRepo()
	publisher := &recordingPublisher{}
	svc := NewGenreService(repo, NewEvents(publisher, "catalog-events"))
	ctx := context.Background()

	fantasy, err := svc.Create(ctx, "Fantasy")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Horror")
	require.NoError(t, err)

	renamed, err := svc.Update(ctx, fantasy.ID, "High Fantasy")
	require.NoError(t, err)
	assert.Equal(t, "High Fantasy", renamed.Name)

	_, err = svc.Update(ctx, fantasy.ID, "High Fantasy")
	assert.NoError(t, err, "renaming to its own name is allowed")

	_, err = svc.Update(ctx, fantasy.ID, "Horror")
	requireKind(t, err, KindConflict, "Genre already exists")

	_, err = svc.Update(ctx, uuid.New(), "Sci-Fi")
	requireKind(t, err, KindNotFound, "Genre not found")

	_, err = svc.Update(ctx, fantasy.ID, "")
	requireKind(t, err, KindValidation, "Genre name is required")

	assert.Equal(t, []string{EventGenreCreated, EventGenreCreated, EventGenreUpdated, EventGenreUpdated}, publisher.types())
}

func TestGenreDelete(t *testing.T) {
	repo := newFakeGenreRepo()
	svc := NewGenreService(repo, nil)
	ctx := context.Background()

	genre, err := svc.Create(ctx, "Fantasy")
	require.NoError(t, err)

	repo.withBook[genre.ID] = true
	err = svc.Delete(ctx, genre.ID)
	requireKind(t, err, KindConflict, "Genre still has books")

	repo.withBook[genre.ID] = false
	require.NoError(t, svc.Delete(ctx, genre.ID))

	err = svc.Delete(ctx, genre.ID)
	requireKind(t, err, KindNotFound, "Genre not found")
}
