package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/bookstore-api/apiserver/internal/logging"
	"github.com/bookstore-api/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	defaultPage = 1

	msgInvalidBody   = "Invalid request body"
	msgInternalError = "Internal server error"
	msgUnauthorized  = "Unauthorized"
	msgSecretMissing = "JWT secret not configured"
	maxJSONBodyBytes = 1 << 20
)

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Message: message})
}

// writeServiceError maps a service failure onto its status and client message.
// Causes of server-side failures are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		logging.FromContext(r.Context()).Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, msgInternalError)
		return
	}

	status := svcErr.Kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error(svcErr.Message, "kind", svcErr.Kind.String(), "error", svcErr.Err)
	}
	writeError(w, status, svcErr.Message)
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return nil
}

func parsePagination(r *http.Request) (page, limit int, err error) {
	page = defaultPage
	limit = services.DefaultPageLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, errors.New("Page must be a positive integer")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("Limit must be a positive integer")
		}
	}

	if limit > services.MaxPageLimit {
		limit = services.MaxPageLimit
	}

	return page, limit, nil
}

func parseUUIDParam(r *http.Request, name, message string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, errors.New(message)
	}
	return id, nil
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
