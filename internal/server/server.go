package server

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"fund-transfers/internal/cache"
	"fund-transfers/internal/config"
	"fund-transfers/internal/domain"
	"fund-transfers/internal/events"
	"fund-transfers/internal/handler"
	"fund-transfers/internal/memstore"
	"fund-transfers/internal/repository"
	"fund-transfers/internal/service"
	"fund-transfers/migrations"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
)

// Server represents the HTTP server
type Server struct {
	router    *mux.Router
	server    *http.Server
	db        *sql.DB
	redis     *redis.Client
	publisher events.Publisher
	logger    *slog.Logger
	port      string
}

// NewServer wires the store, cache and event publisher selected by cfg behind
// the HTTP routes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	ctx := context.Background()
	s := &Server{logger: logger}

	store, err := s.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err = s.wrapCache(ctx, cfg, store)
	if err != nil {
		s.closeResources()
		return nil, err
	}

	s.publisher = newPublisher(cfg, logger)
	s.router = NewRouter(store, s.publisher, logger)
	return s, nil
}

func (s *Server) openStore(ctx context.Context, cfg *config.Config) (domain.Store, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		s.logger.Info("Using in-memory store")
		return memstore.New(cfg.TransferLockTimeout, s.logger), nil
	}

	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.db = db
	s.logger.Info("Successfully connected to database")

	if cfg.DBAutoMigrate {
		if err := repository.Migrate(ctx, db, migrations.FS, s.logger); err != nil {
			db.Close()
			return nil, err
		}
	}

	return repository.NewStore(db, cfg.TransferLockTimeout, s.logger), nil
}

func (s *Server) wrapCache(ctx context.Context, cfg *config.Config, store domain.Store) (domain.Store, error) {
	switch cfg.CacheDriver {
	case config.CacheDriverNone:
		return store, nil
	case config.CacheDriverRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		s.redis = client
		s.logger.Info("Using redis account cache", "prefix", cfg.RedisKeyPrefix, "ttl", cfg.CacheTTL)
		return cache.NewStore(store, cache.NewRedisCache(client, cfg.RedisKeyPrefix, cfg.CacheTTL), s.logger), nil
	default:
		return cache.NewStore(store, cache.NewMemoryCache(), s.logger), nil
	}
}

// newPublisher falls back to dropping events when no broker is configured or
// the broker cannot be reached; transfers do not depend on it.
func newPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.RabbitMQURL == "" {
		return events.NewNopPublisher(logger)
	}
	publisher, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.TransferEventsExchange, logger)
	if err != nil {
		logger.Warn("Event broker unavailable, transfer events disabled", "error", err)
		return events.NewNopPublisher(logger)
	}
	logger.Info("Publishing transfer events", "exchange", cfg.TransferEventsExchange)
	return publisher
}

// NewRouter builds the HTTP routes over store.
func NewRouter(store domain.Store, publisher events.Publisher, logger *slog.Logger) *mux.Router {
	// Initialize services
	accountService := service.NewAccountService(store, logger)
	transactionService := service.NewTransactionService(store, publisher, logger)

	// Initialize handlers
	accountHandler := handler.NewAccountHandler(accountService)
	transactionHandler := handler.NewTransactionHandler(transactionService)
	healthHandler := handler.NewHealthHandler(store, logger)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(logger))

	// Account routes
	router.HandleFunc("/accounts", accountHandler.CreateAccount).Methods("POST")
	router.HandleFunc("/accounts/{account_id}", accountHandler.GetAccount).Methods("GET")

	// Transaction routes
	router.HandleFunc("/transactions", transactionHandler.Transfer).Methods("POST")
	router.HandleFunc("/transactions", transactionHandler.ListTransactions).Methods("GET")
	router.HandleFunc("/transactions/{id}", transactionHandler.GetTransaction).Methods("GET")

	router.HandleFunc("/health", healthHandler.Health).Methods("GET")

	return router
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Create response wrapper to capture status code
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server on the specified port
func (s *Server) Start(port string) (string, error) {
	// Create listener first to get actual port
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	// Get the actual port being used
	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server failed to start", "error", err)
		}
	}()

	return s.port, nil
}

// Stop drains in-flight requests, then releases the store, cache and broker connections.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.closeResources()
	return err
}

func (s *Server) closeResources() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.redis != nil {
		s.redis.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer starts the server with the given configuration
func StartServer(cfg *config.Config) (*Server, string, error) {
	var logger *slog.Logger
	if cfg.ServerPort == "0" {
		// Test environment - use discard logger
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	} else {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.closeResources()
		return nil, "", err
	}

	return server, port, nil
}
