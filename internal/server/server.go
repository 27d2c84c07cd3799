package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/orderdesk/apiserver/config"
	"github.com/orderdesk/apiserver/internal/db"
	"github.com/orderdesk/apiserver/internal/handlers"
	"github.com/orderdesk/apiserver/internal/metrics"
	"github.com/orderdesk/apiserver/internal/mq"
	"github.com/orderdesk/apiserver/internal/services"
	"github.com/orderdesk/apiserver/internal/storage"
	"github.com/orderdesk/apiserver/internal/store"
)

const requestTimeout = 60 * time.Second

// Dependencies are the services the router dispatches to.
type Dependencies struct {
	Users          *services.UserService
	Tokens         *services.TokenService
	Orders         *services.OrderService
	Images         *services.ImageUploader
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	CORS           CORSOptions
	MaxUploadBytes int64
}

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
	closers    []func() error
}

// New wires repositories, storage and the event publisher selected by cfg.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{logger: logger}

	var (
		userRepo  services.UserRepository
		orderRepo services.OrderRepository
	)
	switch cfg.StoreBackend {
	case "", config.StoreBackendFile:
		fs, err := store.NewFileStore(cfg.DataFile)
		if err != nil {
			return nil, fmt.Errorf("open data file: %w", err)
		}
		userRepo = store.NewFileUserRepository(fs)
		orderRepo = store.NewFileOrderRepository(fs)
		logger.Info("using file store", "path", fs.Path())
	case config.StoreBackendPostgres:
		dbConn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, dbConn.Close)
		userRepo = store.NewPostgresUserRepository(dbConn)
		orderRepo = store.NewPostgresOrderRepository(dbConn)
		logger.Info("using postgres store", "host", cfg.Database.Host, "db", cfg.Database.DBName)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	objects, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	s.closers = append(s.closers, objects.Close)

	publisher, err := mq.FromConfig(ctx, cfg.MQ)
	if err != nil {
		s.close()
		return nil, fmt.Errorf("init mq: %w", err)
	}
	// A nil *OrderEventPublisher must not become a non-nil interface.
	var events services.EventPublisher
	if publisher != nil {
		events = publisher
		s.closers = append(s.closers, publisher.Close)
		logger.Info("publishing order events", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}

	tokens := services.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	images := services.NewImageUploader(objects)

	cors := DefaultCORSOptions()
	if len(cfg.CORSOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSOrigins
	}

	s.router = NewRouter(Dependencies{
		Users:          services.NewUserService(userRepo, tokens),
		Tokens:         tokens,
		Orders:         services.NewOrderService(orderRepo, images, events),
		Images:         images,
		Metrics:        metrics.New(),
		Logger:         logger,
		CORS:           cors,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 4000
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// NewRouter builds the HTTP routes for deps.
func NewRouter(deps Dependencies) *chi.Mux {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		RequestLogger(logger),
		middleware.Recoverer,
		CORS(deps.CORS),
	)
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware)
		router.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	router.Get("/healthz", handlers.Healthz)
	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		handlers.AuthRouter(r, deps.Users, deps.Tokens)
		r.Route("/orders", func(r chi.Router) {
			handlers.OrderRouter(r, deps.Orders, handlers.RequireAuth(deps.Tokens), deps.MaxUploadBytes)
		})
	})
	router.Route("/uploads", func(r chi.Router) {
		handlers.UploadRouter(r, deps.Images)
	})

	return router
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
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

// Shutdown drains in-flight requests and releases backend connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("close failed", "error", err)
		}
	}
	s.closers = nil
}
