//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/bookstore-api/apiserver/config"
	"github.com/bookstore-api/apiserver/internal/db"
	"github.com/bookstore-api/apiserver/internal/server"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	serverPort = 18080
)

var baseURL = fmt.Sprintf("http://localhost:%d", serverPort)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	setTestEnv()
	cfg := config.LoadConfig()

	if err := waitForPostgres(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := db.MigrateUp(cfg.Database.PostgresURL()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}
	go func() {
		_ = srv.Start()
	}()

	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown(context.Background())
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown(context.Background())
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestAuthLifecycle(t *testing.T) {
	email := fmt.Sprintf("reader_%d@example.com", time.Now().UnixNano())

	status, body := do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": "password1"})
	require.Equal(t, http.StatusCreated, status, body.Message)
	var registered struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &registered))
	assert.Equal(t, email, registered.Email)

	status, body = do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": "password1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Email already registered", body.Message)

	status, wrong := do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": "password2"})
	assert.Equal(t, http.StatusUnauthorized, status)
	status, unknown := do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "nobody@example.com", "password": "password1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, wrong.Message, unknown.Message)

	token := login(t, email, "password1")

	status, body = do(t, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	var profile map[string]any
	require.NoError(t, json.Unmarshal(body.Data, &profile))
	assert.Equal(t, registered.ID, profile["id"])
	assert.Equal(t, email, profile["email"])
	assert.NotContains(t, profile, "password_hash")
	assert.NotContains(t, profile, "created_at")
}

func TestCatalogLifecycle(t *testing.T) {
	suffix := time.Now().UnixNano()
	email := fmt.Sprintf("editor_%d@example.com", suffix)
	status, body := do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": "password1"})
	require.Equal(t, http.StatusCreated, status, body.Message)
	token := login(t, email, "password1")

	status, _ = do(t, http.MethodPost, "/genres", "", map[string]string{"name": "Unauthorized"})
	assert.Equal(t, http.StatusUnauthorized, status)

	genreName := fmt.Sprintf("Fantasy %d", suffix)
	status, body = do(t, http.MethodPost, "/genres", token, map[string]string{"name": genreName})
	require.Equal(t, http.StatusCreated, status, body.Message)
	var genre struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &genre))

	title := fmt.Sprintf("The Hobbit %d", suffix)
	status, body = do(t, http.MethodPost, "/books", token, map[string]any{
		"title":          title,
		"writer":         "J. R. R. Tolkien",
		"price":          12.5,
		"stock_quantity": 3,
		"genre_id":       genre.ID,
	})
	require.Equal(t, http.StatusCreated, status, body.Message)
	var book struct {
		ID    string `json:"id"`
		Genre struct {
			Name string `json:"name"`
		} `json:"genre"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &book))
	assert.Equal(t, genreName, book.Genre.Name)

	status, body = do(t, http.MethodGet, fmt.Sprintf("/books?title=%d&page=1&limit=10", suffix), "", nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &page))
	assert.Equal(t, 1, page.Total)

	status, body = do(t, http.MethodDelete, "/genres/"+genre.ID, token, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Genre still has books", body.Message)

	status, body = uploadCover(t, book.ID, token)
	require.Equal(t, http.StatusOK, status, body.Message)

	resp, err := http.Get(baseURL + "/books/" + book.ID + "/cover")
	require.NoError(t, err)
	cover, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, pngBytes, cover)

	status, _ = do(t, http.MethodDelete, "/books/"+book.ID, token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, http.MethodGet, "/books/"+book.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = do(t, http.MethodDelete, "/genres/"+genre.ID, token, nil)
	assert.Equal(t, http.StatusOK, status)
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func uploadCover(t *testing.T, bookID, token string) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="cover"; filename="cover.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, err := http.NewRequest(http.MethodPut, baseURL+"/books/"+bookID+"/cover", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return send(t, req)
}

func login(t *testing.T, email, password string) string {
	t.Helper()

	status, body := do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status, body.Message)
	var session struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &session))
	require.NotEmpty(t, session.AccessToken)
	return session.AccessToken
}

func do(t *testing.T, method, path, token string, payload any) (int, envelope) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	require.NoError(t, err)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return send(t, req)
}

func send(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "bookstore")
	_ = os.Setenv("DB_PASSWORD", "bookstore")
	_ = os.Setenv("DB_NAME", "bookstore")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "bookstore-e2e")
	_ = os.Setenv("MQ_BACKEND", "")
}

func waitForPostgres(ctx context.Context, cfg config.Config) error {
	conn, err := sql.Open("postgres", cfg.Database.PostgresURL())
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := conn.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
