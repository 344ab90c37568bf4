package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/recallpro/auth/config"
	"github.com/recallpro/auth/internal/auth"
	"github.com/recallpro/auth/internal/db"
	"github.com/recallpro/auth/internal/handlers"
	"github.com/recallpro/auth/internal/logging"
	"github.com/recallpro/auth/internal/services"
	"github.com/recallpro/auth/internal/store"
	"github.com/recallpro/auth/internal/storeclient"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second

	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
}

// NewStore constructs the credential store server on the configured backend.
func NewStore(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	var (
		dbConn    *sql.DB
		userRepo  services.UserRepository
		tokenRepo services.RefreshTokenRepository
		pinger    handlers.Pinger
	)

	switch cfg.StoreBackend {
	case BackendPostgres, "":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		dbConn = conn
		pinger = conn
		userRepo = store.NewUserRepository(conn)
		tokenRepo = store.NewRefreshTokenRepository(conn)
	case BackendMemory:
		memory := store.NewMemoryDB()
		userRepo = memory.Users()
		tokenRepo = memory.RefreshTokens()
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}

	router := StoreRouter(userRepo, tokenRepo, pinger, cfg.CORS, log)
	log.Info("credential store configured", "backend", cfg.StoreBackend, "port", cfg.StoreServerPort)

	return &Server{
		httpServer: newHTTPServer(cfg.StoreServerPort, router),
		router:     router,
		db:         dbConn,
	}, nil
}

// NewAuth constructs the auth server talking to the configured credential store.
func NewAuth(cfg config.Config, log *slog.Logger) (*Server, error) {
	engine, err := NewEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	router := AuthRouter(engine, cfg.CORS, log)
	log.Info("auth service configured", "store_url", cfg.StoreClient.BaseURL, "port", cfg.AuthServerPort)

	return &Server{
		httpServer: newHTTPServer(cfg.AuthServerPort, router),
		router:     router,
	}, nil
}

// NewEngine wires an auth engine to the credential store's HTTP API.
func NewEngine(cfg config.Config, log *slog.Logger) (*auth.Engine, error) {
	client := storeclient.NewHTTPClient(cfg.StoreClient, nil, log)
	return auth.NewEngine(client, cfg.Auth, log)
}

// StoreRouter builds the credential store's routes. A nil pinger skips the
// database check in /healthz.
func StoreRouter(
	userRepo services.UserRepository,
	tokenRepo services.RefreshTokenRepository,
	pinger handlers.Pinger,
	corsCfg config.CORSConfig,
	log *slog.Logger,
) *chi.Mux {
	userService := services.NewUserService(userRepo)
	tokenService := services.NewTokenService(tokenRepo)

	router := newRouter(corsCfg, log)
	router.Get("/healthz", handlers.Healthz(pinger))
	router.Route(apiPrefix, func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, userService, log)
		})
		r.Route("/tokens", func(r chi.Router) {
			handlers.TokenRouter(r, tokenService, log)
		})
	})
	return router
}

// AuthRouter builds the auth service's routes.
func AuthRouter(engine *auth.Engine, corsCfg config.CORSConfig, log *slog.Logger) *chi.Mux {
	router := newRouter(corsCfg, log)
	router.Get("/healthz", handlers.Healthz(nil))
	router.Route(apiPrefix, func(r chi.Router) {
		handlers.AuthRouter(r, engine, log)
	})
	return router
}

func newRouter(corsCfg config.CORSConfig, log *slog.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware(log),
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins: corsCfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}),
	)
	return router
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones until ctx is
// done and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
