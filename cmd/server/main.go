package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/linker/internal/config"
	"github.com/liamcoop/linker/internal/logger"
	"github.com/liamcoop/linker/lookup"
	"github.com/liamcoop/linker/migrations"
	"github.com/liamcoop/linker/provider"
	"github.com/liamcoop/linker/resolver"
	"github.com/liamcoop/linker/rules"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	db        *sql.DB
	redis     *redis.Client
	store     *provider.StoreProvider
	snapshots *provider.CachedProvider
	resolver  *resolver.Service
	storage   string
	origin    string
	router    *chi.Mux
}

func NewServer(cfg *config.Config) (*Server, error) {
	var (
		db         *sql.DB
		conditions rules.ConditionStore
		tables     lookup.TableStore
	)

	switch cfg.Storage {
	case config.StoragePostgres:
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}

		logger.Info("Applying migrations")
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			return nil, err
		}

		conditions = rules.NewPostgresConditionStore(db)
		tables = lookup.NewPostgresTableStore(db)
	default:
		conditions = rules.NewInMemoryConditionStore()
		tables = lookup.NewInMemoryTableStore()
	}

	store := provider.NewStoreProvider(conditions, tables)

	if cfg.SeedFile != "" {
		doc, err := provider.ReadFile(cfg.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read seed file: %w", err)
		}
		if err := store.Import(context.Background(), doc); err != nil {
			return nil, fmt.Errorf("failed to seed stores: %w", err)
		}
		logger.Info("Seeded stores", "file", cfg.SeedFile,
			"conditions", len(doc.Shortcuts), "tables", len(doc.Tables))
	}

	cacheConfig := provider.CacheConfig{TTL: cfg.CacheTTL}

	var (
		client  *redis.Client
		cache   provider.SnapshotCache
		backend string
	)
	if cfg.RedisAddr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache = provider.NewRedisSnapshotCache(client, provider.DefaultRedisKey, cacheConfig)
		backend = "redis"
	} else {
		cache = provider.NewInMemorySnapshotCache(cacheConfig)
		backend = "memory"
	}

	s := newServer(store, cache, backend, cfg.Origin)
	s.db = db
	s.redis = client
	s.storage = cfg.Storage

	logger.Info("Server configured", "storage", cfg.Storage, "cache", backend)
	return s, nil
}

// newServer wires the resolver and routes around already-built stores
func newServer(store *provider.StoreProvider, cache provider.SnapshotCache, backend, origin string) *Server {
	snapshots := provider.NewCachedProvider(store, cache, backend)

	s := &Server{
		store:     store,
		snapshots: snapshots,
		resolver:  resolver.NewService(snapshots, origin),
		storage:   config.StorageMemory,
		origin:    origin,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Query entry point, registered as the browser search engine
	r.Get("/", s.handleResolve)

	// Admin views that Navigate results point at
	r.Get("/go/", s.handleConditionView)
	r.Get("/find/", s.handleTableView)

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/conditions", func(r chi.Router) {
		r.Get("/", s.handleListConditions)
		r.Post("/", s.handleCreateCondition)
		r.Get("/{conditionID}", s.handleGetCondition)
		r.Put("/{conditionID}", s.handleUpdateCondition)
		r.Delete("/{conditionID}", s.handleDeleteCondition)
		r.Post("/{conditionID}/duplicate", s.handleDuplicateCondition)
		r.Post("/{conditionID}/rules", s.handleAddRule)
		r.Put("/{conditionID}/rules", s.handleReorderRules)
		r.Post("/{conditionID}/test", s.handleTestRules)
		r.Put("/{conditionID}/rules/{ruleID}", s.handleUpdateRule)
		r.Delete("/{conditionID}/rules/{ruleID}", s.handleDeleteRule)
	})

	r.Route("/api/v1/tables", func(r chi.Router) {
		r.Get("/", s.handleListTables)
		r.Post("/", s.handleCreateTable)
		r.Get("/{tableID}", s.handleGetTable)
		r.Put("/{tableID}", s.handleUpdateTable)
		r.Delete("/{tableID}", s.handleDeleteTable)
		r.Post("/{tableID}/duplicate", s.handleDuplicateTable)
		r.Post("/{tableID}/entries", s.handleAddEntry)
		r.Put("/{tableID}/entries/{entryID}", s.handleUpdateEntry)
		r.Delete("/{tableID}/entries/{entryID}", s.handleDeleteEntry)
	})

	r.Get("/api/v1/export", s.handleExport)
	r.Put("/api/v1/export", s.handleImport)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the database and redis connections, if any
func (s *Server) Close() {
	if s.db != nil {
		s.db.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	snapshot, err := s.snapshots.Snapshot(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"storage":    s.storage,
		"conditions": len(snapshot.Conditions),
		"tables":     len(snapshot.Tables),
	})
}

// invalidate drops the cached snapshot after a write
func (s *Server) invalidate(ctx context.Context) {
	s.snapshots.Invalidate(ctx)
}

// requestOrigin is the configured origin, or the one the request came in on
func (s *Server) requestOrigin(r *http.Request) string {
	if s.origin != "" {
		return s.origin
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	switch {
	case status >= 500:
		logger.ErrorHTTP5xx(status)
		logger.Error(message, "status", status, "error", err)
	case status >= 400:
		logger.WarnHTTP4xx(status)
	}

	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", "error", err)
	}

	if err := logger.Configure(cfg.LogLevel, cfg.ErrorSampleRate); err != nil {
		logger.Fatal("Invalid logging configuration", "error", err)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}
	defer server.Close()

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "addr", cfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
