package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bookstore-api/apiserver/config"
	"github.com/bookstore-api/apiserver/internal/auth"
	"github.com/bookstore-api/apiserver/internal/db"
	"github.com/bookstore-api/apiserver/internal/handlers"
	"github.com/bookstore-api/apiserver/internal/logging"
	"github.com/bookstore-api/apiserver/internal/mq"
	"github.com/bookstore-api/apiserver/internal/services"
	"github.com/bookstore-api/apiserver/internal/storage"
	"github.com/bookstore-api/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/uptrace/bun"
)

const defaultTokenTTL = 7 * 24 * time.Hour

// Dependencies are the collaborators the HTTP routes are built from.
type Dependencies struct {
	Logger         *slog.Logger
	Tokens         handlers.TokenVerifier
	AuthService    *services.AuthService
	GenreService   *services.GenreService
	BookService    *services.BookService
	CoversEnabled  bool
	AllowedOrigins []string
}

// Server wraps the HTTP server and the backends it owns.
type Server struct {
	httpServer *http.Server
	router     http.Handler
	logger     *slog.Logger
	db         *bun.DB
	storage    *storage.Storage
	mq         *mq.MQ
}

// New connects to the database and the optional storage and broker backends,
// then builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	covers, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	broker, err := mq.New(ctx, cfg.MQ)
	if err != nil {
		if covers != nil {
			_ = covers.Close()
		}
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to init mq: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("JWT_SECRET is not set; login and authenticated routes will fail")
	}
	ttl, err := auth.ParseExpiry(cfg.Auth.JWTExpiresIn)
	if err != nil {
		logger.Warn("invalid JWT_EXPIRES_IN, using default", "value", cfg.Auth.JWTExpiresIn, "default", defaultTokenTTL.String())
		ttl = defaultTokenTTL
	}
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, ttl)

	var events *services.Events
	if broker != nil {
		events = services.NewEvents(broker, cfg.MQ.EventsChannel)
	}

	var coverStore services.CoverStore
	if covers != nil {
		coverStore = covers
	}

	deps := Dependencies{
		Logger:         logger,
		Tokens:         tokens,
		AuthService:    services.NewAuthService(store.NewUserRepository(dbConn), tokens),
		GenreService:   services.NewGenreService(store.NewGenreRepository(dbConn), events),
		BookService:    services.NewBookService(store.NewBookRepository(dbConn), coverStore, events),
		CoversEnabled:  covers != nil,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	}
	router := NewRouter(deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		logger:     logger,
		db:         dbConn,
		storage:    covers,
		mq:         broker,
	}, nil
}

// NewRouter mounts every route on a chi router with the standard middleware.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	requireAuth := handlers.RequireAuth(deps.Tokens)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.RequestLogger(logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}),
		middleware.Timeout(60*time.Second),
	)

	router.Get("/healthz", handlers.Health)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, deps.AuthService, requireAuth)
	})
	router.Route("/genres", func(r chi.Router) {
		handlers.GenreRouter(r, deps.GenreService, requireAuth)
	})
	router.Route("/books", func(r chi.Router) {
		handlers.BookRouter(r, deps.BookService, requireAuth, deps.CoversEnabled)
	})

	return router
}

// Router exposes the HTTP handler.
func (s *Server) Router() http.Handler {
	return s.router
}

// Addr is the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the backends.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.mq != nil {
		if closeErr := s.mq.Close(); closeErr != nil {
			s.logger.Warn("failed to close mq", "error", closeErr)
		}
	}
	if s.storage != nil {
		if closeErr := s.storage.Close(); closeErr != nil {
			s.logger.Warn("failed to close storage", "error", closeErr)
		}
	}
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			s.logger.Warn("failed to close database", "error", closeErr)
		}
	}
	return err
}
