package handlers

import (
	"net/http"

	"github.com/bookstore-api/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
)

const msgInvalidGenreID = "Invalid genre id"

// GenreHandler provides HTTP handlers for genres.
type GenreHandler struct {
	genreService *services.GenreService
}

func NewGenreHandler(genreService *services.GenreService) *GenreHandler {
	return &GenreHandler{genreService: genreService}
}

// GenreRouter registers genre routes. Writes go through requireAuth.
func GenreRouter(r chi.Router, genreService *services.GenreService, requireAuth func(http.Handler) http.Handler) {
	handler := NewGenreHandler(genreService)

	r.Get("/", handler.ListGenres)
	r.With(requireAuth).Post("/", handler.CreateGenre)
	r.Route("/{genreID}", func(r chi.Router) {
		r.Use(requireAuth)
		r.Put("/", handler.UpdateGenre)
		r.Delete("/", handler.DeleteGenre)
	})
}

type GenreRequest struct {
	Name string `json:"name"`
}

func (h *GenreHandler) ListGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.genreService.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Genres fetched successfully", genres)
}

func (h *GenreHandler) CreateGenre(w http.ResponseWriter, r *http.Request) {
	var req GenreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	genre, err := h.genreService.Create(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Genre created successfully", genre)
}

func (h *GenreHandler) UpdateGenre(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "genreID", msgInvalidGenreID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req GenreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	genre, err := h.genreService.Update(r.Context(), id, req.Name)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Genre updated successfully", genre)
}

func (h *GenreHandler) DeleteGenre(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "genreID", msgInvalidGenreID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.genreService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Genre deleted successfully", nil)
}
