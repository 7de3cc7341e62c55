// Package server is the composition root: it opens the database and Redis,
// builds services and handlers, defines the routes, and runs the HTTP
// server with graceful shutdown.
//
//	main.go → config.Load → server.New
//	server.New: sqlite.DB → repositories → services → handlers → chi routes
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/devspace/internal/auth"
	"github.com/sakif/devspace/internal/config"
	"github.com/sakif/devspace/internal/executor"
	"github.com/sakif/devspace/internal/handler"
	"github.com/sakif/devspace/internal/middleware"
	"github.com/sakif/devspace/internal/realtime"
	"github.com/sakif/devspace/internal/repository"
	sqliteRepo "github.com/sakif/devspace/internal/repository/sqlite"
	"github.com/sakif/devspace/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Server owns the database and Redis connections and closes them on
// shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
	redis  *redis.Client // nil when REDIS_URL is empty or unreachable

	Services Services
}

// Services is exposed for tools that share the server's wiring (the seeder
// and tests).
type Services struct {
	Auth          *service.AuthService
	Projects      *service.ProjectService
	Snippets      *service.SnippetService
	Notifications *service.NotificationService
}

// New wires the application. exec may be nil; /run then answers 503.
func New(cfg *config.Config, logger *slog.Logger, exec executor.Executor) (*Server, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
		redis:  connectRedis(cfg.RedisURL, logger),
	}

	if err := s.setupRoutes(exec); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

// connectRedis returns nil when Redis is not configured or not reachable;
// the app then runs without real-time delivery.
func connectRedis(url string, logger *slog.Logger) *redis.Client {
	if url == "" {
		logger.Info("REDIS_URL not set, real-time relay disabled")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid REDIS_URL, real-time relay disabled", slog.String("error", err.Error()))
		return nil
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, real-time relay disabled", slog.String("error", err.Error()))
		rdb.Close()
		return nil
	}
	logger.Info("connected to redis", slog.String("addr", opts.Addr))
	return rdb
}

// setupRoutes builds the dependency graph and registers every route.
//
// Middleware order: request id, real ip, logging, metrics, panic recovery,
// CORS. Auth is applied per route group.
func (s *Server) setupRoutes(exec executor.Executor) error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.config.GitHubCallbackURL)
	}

	publisher := realtime.NewPublisher(s.redis)

	var (
		users         repository.UserRepository         = s.db.Users()
		projects      repository.ProjectRepository      = s.db.Projects()
		snippets      repository.SnippetRepository      = s.db.Snippets()
		collaborators repository.CollaboratorRepository = s.db.Collaborators()
		stars         repository.StarRepository         = s.db.Stars()
	)

	notificationSvc := service.NewNotificationService(s.db.Notifications(), users, publisher, s.logger)
	projectSvc := service.NewProjectService(projects, snippets, users, collaborators, stars, notificationSvc, s.logger)
	snippetSvc := service.NewSnippetService(snippets, projects, users, collaborators, stars,
		projectSvc, notificationSvc, publisher, exec, s.logger)
	authSvc := service.NewAuthService(users, tokens, auth.NewPasswordService(), s.logger)

	s.Services = Services{
		Auth:          authSvc,
		Projects:      projectSvc,
		Snippets:      snippetSvc,
		Notifications: notificationSvc,
	}

	authHandler := handler.NewAuthHandler(authSvc, github, tokens, s.config.IsProduction(), s.logger)
	snippetHandler := handler.NewSnippetHandler(snippetSvc, s.logger)
	projectHandler := handler.NewProjectHandler(projectSvc, s.logger)
	notificationHandler := handler.NewNotificationHandler(notificationSvc, s.logger)
	realtimeHandler := handler.NewRealtimeHandler(snippetSvc, publisher, s.config.Origins(), s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(s.config.Origins()))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
	r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.HandleMe)
				r.Put("/profile", authHandler.HandleUpdateProfile)
				r.Put("/password", authHandler.HandleChangePassword)
			})
		})

		r.Route("/code", func(r chi.Router) {
			// Readable anonymously when public.
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/public", snippetHandler.HandleList(repository.ScopePublic))
				r.Get("/collaborative", snippetHandler.HandleList(repository.ScopeCollaborative))
				r.Get("/project/{projectId}", snippetHandler.HandleListProject)
				r.Get("/{id}", snippetHandler.HandleGet)
				r.Get("/{id}/collaborators", snippetHandler.HandleCollaborators)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", snippetHandler.HandleCreate)
				r.Get("/owned", snippetHandler.HandleList(repository.ScopeOwned))
				r.Get("/starred", snippetHandler.HandleList(repository.ScopeStarred))
				r.Get("/forked", snippetHandler.HandleList(repository.ScopeForked))
				r.Put("/{id}", snippetHandler.HandleUpdate)
				r.Delete("/{id}", snippetHandler.HandleDelete)
				r.Post("/{id}/star", snippetHandler.HandleStar)
				r.Post("/{id}/fork", snippetHandler.HandleFork)
				r.Post("/{id}/run", snippetHandler.HandleRun)
				r.Post("/{id}/collaborators", snippetHandler.HandleAddCollaborator)
				r.Delete("/{id}/collaborators", snippetHandler.HandleRemoveCollaborator)
				r.Post("/{id}/collaborators/request", snippetHandler.HandleRequestCollaboration)
			})
		})

		r.Route("/projects", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/{id}", projectHandler.HandleGet)
				r.Get("/{id}/collaborators", projectHandler.HandleCollaborators)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", projectHandler.HandleList)
				r.Post("/", projectHandler.HandleCreate)
				r.Put("/{id}", projectHandler.HandleUpdate)
				r.Delete("/{id}", projectHandler.HandleDelete)
				r.Post("/{id}/star", projectHandler.HandleStar)
				r.Post("/{id}/fork", projectHandler.HandleFork)
				r.Post("/{id}/collaborators", projectHandler.HandleAddCollaborator)
				r.Put("/{id}/collaborators/{userId}", projectHandler.HandleUpdateCollaborator)
				r.Delete("/{id}/collaborators/{userId}", projectHandler.HandleRemoveCollaborator)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", notificationHandler.HandleList)
			r.Put("/read-all", notificationHandler.HandleMarkAllRead)
			r.Put("/{id}/read", notificationHandler.HandleMarkRead)
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.With(optionalAuth).Get("/code/{id}", realtimeHandler.HandleSnippetSocket)
		r.With(requireAuth).Get("/notifications", realtimeHandler.HandleNotificationSocket)
	})

	return nil
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
}

// handleHealth reports 503 when the database is unreachable. Redis is
// optional and only reported.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Database: "ok", Redis: "disabled"}
	status := http.StatusOK

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check: database ping failed", slog.String("error", err.Error()))
		res.Status, res.Database = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}
	if s.redis != nil {
		res.Redis = "ok"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			res.Redis = "unreachable"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(res)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database and Redis connections.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30 seconds and closes the connections.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Long enough for a sandboxed run; WebSockets are hijacked and
		// manage their own deadlines.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("env", s.config.Env),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}
