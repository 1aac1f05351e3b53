// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - which store backs the repositories (MongoDB, SQLite or in-memory)
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go loads config.Config and a *zap.Logger
//	server.New opens the store, the token/password services, the limiters
//	NewRouter builds services → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sakif/volunteer-hub/internal/auth"
	"github.com/sakif/volunteer-hub/internal/config"
	"github.com/sakif/volunteer-hub/internal/metrics"
	"github.com/sakif/volunteer-hub/internal/middleware"
	"github.com/sakif/volunteer-hub/internal/repository/memory"
	"github.com/sakif/volunteer-hub/internal/repository/mongodb"
	"github.com/sakif/volunteer-hub/internal/repository/sqlite"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the MongoDB client, the Redis client and the in-memory
// limiters' cleanup goroutines. closers releases them in reverse order of
// acquisition when Start returns or New fails halfway.
type Server struct {
	handler http.Handler
	cfg     config.Config
	logger  *zap.Logger
	closers []func(context.Context) error
}

// New opens every backing resource named in cfg and builds the router.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	deps, err := s.buildDeps(ctx)
	if err != nil {
		s.Close(context.Background())
		return nil, err
	}
	s.handler = NewRouter(deps)
	return s, nil
}

func (s *Server) buildDeps(ctx context.Context) (Deps, error) {
	cfg := s.cfg

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return Deps{}, fmt.Errorf("creating token service: %w", err)
	}

	d := Deps{
		Backend:        cfg.Store.Driver,
		Tokens:         tokens,
		Passwords:      auth.NewPasswordService(cfg.Auth.BcryptCost),
		Metrics:        metrics.New(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		SecureCookies:  cfg.IsProduction(),
		Logger:         s.logger,
	}

	// === Store ===
	switch cfg.Store.Driver {
	case config.DriverMemory:
		s.logger.Warn("using the in-memory store, data is lost on restart")
		d.Stores = memory.New().Stores()
	case config.DriverSQLite:
		db, err := openSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return Deps{}, err
		}
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
		s.logger.Info("using the sqlite store", zap.String("path", cfg.Store.SQLitePath))
		d.Stores = db.Stores()
		d.Pinger = db
	default:
		db, err := OpenMongo(ctx, cfg.Store)
		if err != nil {
			return Deps{}, err
		}
		s.closers = append(s.closers, db.Close)

		if err := db.EnsureIndexes(ctx); err != nil {
			return Deps{}, fmt.Errorf("ensuring indexes: %w", err)
		}
		d.Stores = db.Stores()
		d.Pinger = db
	}

	// === Rate limiters ===
	d.AuthLimit, d.APILimit = s.buildLimiters(ctx)

	// === GitHub sign-in ===
	if cfg.GitHub.Enabled() {
		d.GitHub = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
		s.logger.Info("GitHub sign-in enabled", zap.String("callback", cfg.GitHub.CallbackURL))
	}

	return d, nil
}

// OpenMongo connects to MongoDB with the store settings. It is shared with
// the `indexes` command.
func OpenMongo(ctx context.Context, cfg config.StoreConfig) (*mongodb.DB, error) {
	db, err := mongodb.New(ctx, mongodb.Options{
		URI:      cfg.MongoURI,
		Database: cfg.Database,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening mongodb: %w", err)
	}
	return db, nil
}

// openSQLite creates the database directory when needed and opens the file.
func openSQLite(ctx context.Context, path string) (*sqlite.DB, error) {
	if path != ":memory:" {
		// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite directory: %w", err)
		}
	}
	db, err := sqlite.New(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	return db, nil
}

// buildLimiters prefers a shared Redis limiter when REDIS_ADDR is set and
// reachable, and falls back to per-process memory limiters otherwise.
func (s *Server) buildLimiters(ctx context.Context) (authLimit, apiLimit middleware.Limiter) {
	cfg := s.cfg
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			s.closers = append(s.closers, func(context.Context) error { return client.Close() })
			s.logger.Info("rate limiting through redis", zap.String("addr", cfg.Redis.Addr))
			return middleware.NewRedisLimiter(client, "volunteer-hub:ratelimit:", cfg.RateLimit.AuthPerMinute),
				middleware.NewRedisLimiter(client, "volunteer-hub:ratelimit:", cfg.RateLimit.APIPerMinute)
		}
		_ = client.Close()
		s.logger.Warn("redis unreachable, rate limiting in memory",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
	}

	authMem := middleware.NewMemoryLimiter(cfg.RateLimit.AuthPerMinute)
	apiMem := middleware.NewMemoryLimiter(cfg.RateLimit.APIPerMinute)
	s.closers = append(s.closers, func(context.Context) error {
		authMem.Close()
		apiMem.Close()
		return nil
	})
	return authMem, apiMem
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close releases every resource New acquired, newest first.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the store and limiter connections
func (s *Server) Start() error {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Close(ctx); err != nil {
			s.logger.Error("closing resources", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			zap.Int("port", s.cfg.Server.Port),
			zap.String("env", s.cfg.Env),
			zap.String("store", s.cfg.Store.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
