package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bookstore-api/apiserver/internal/logging"
	"github.com/bookstore-api/apiserver/internal/services"
	"github.com/bookstore-api/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	msgInvalidBookID  = "Invalid book id"
	formFieldCover    = "cover"
	maxCoverFormBytes = services.MaxCoverBytes + 1<<20

	msgCoverUnreadable   = "Cover file could not be read"
	msgCoverTypeMismatch = "Cover content does not match its declared type"
)

// BookHandler provides HTTP handlers for books.
type BookHandler struct {
	bookService *services.BookService
}

func NewBookHandler(bookService *services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

// BookRouter registers book routes. Cover routes are added only when withCovers is set.
func BookRouter(
	r chi.Router,
	bookService *services.BookService,
	requireAuth func(http.Handler) http.Handler,
	withCovers bool,
) {
	handler := NewBookHandler(bookService)

	r.Get("/", handler.ListBooks)
	r.With(requireAuth).Post("/", handler.CreateBook)
	r.Route("/{bookID}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.With(requireAuth).Put("/", handler.UpdateBook)
		r.With(requireAuth).Delete("/", handler.DeleteBook)
		if withCovers {
			r.Get("/cover", handler.GetCover)
			r.With(requireAuth).Put("/cover", handler.UploadCover)
		}
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.bookService.List(r.Context(), r.URL.Query().Get("title"), page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Books fetched successfully", result)
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "bookID", msgInvalidBookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book fetched successfully", book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var input types.BookInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	book, err := h.bookService.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Book created successfully", book)
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "bookID", msgInvalidBookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var input types.BookInput
	if err := decodeJSON(w, r, &input); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	book, err := h.bookService.Update(r.Context(), id, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book updated successfully", book)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "bookID", msgInvalidBookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Book deleted successfully", nil)
}

// UploadCover accepts a multipart form with the image in the "cover" field.
func (h *BookHandler) UploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "bookID", msgInvalidBookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxCoverFormBytes)
	if err := r.ParseMultipartForm(services.MaxCoverBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Cover image must be at most 5 MiB")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(formFieldCover)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Cover file is required")
		return
	}
	defer file.Close()

	contentType, err := coverContentType(header, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.UploadCover(r.Context(), id, file, header.Size, contentType)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Cover uploaded successfully", book)
}

func (h *BookHandler) GetCover(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "bookID", msgInvalidBookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cover, err := h.bookService.Cover(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer cover.Body.Close()

	w.Header().Set("Content-Type", cover.ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, cover.Body); err != nil {
		logging.FromContext(r.Context()).Warn("failed to stream cover", "error", err)
	}
}

// coverContentType sniffs the first bytes of the file. A declared part type
// must agree with the sniffed one.
func coverContentType(header *multipart.FileHeader, file multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", errors.New(msgCoverUnreadable)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", errors.New(msgCoverUnreadable)
	}

	sniffed := mediaType(http.DetectContentType(buf[:n]))
	declared := mediaType(header.Header.Get("Content-Type"))
	if declared != "" && declared != "application/octet-stream" && declared != sniffed {
		return "", errors.New(msgCoverTypeMismatch)
	}
	return sniffed, nil
}

func mediaType(value string) string {
	return strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
}
