package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/bryanreynaldy/social-media-api/internal/api/http"
	"github.com/bryanreynaldy/social-media-api/internal/api/middleware"
	"github.com/bryanreynaldy/social-media-api/internal/api/ws"
	"github.com/bryanreynaldy/social-media-api/internal/cache"
	"github.com/bryanreynaldy/social-media-api/internal/domain/browser"
	"github.com/bryanreynaldy/social-media-api/internal/domain/coordinator"
	"github.com/bryanreynaldy/social-media-api/internal/domain/platform"
	"github.com/bryanreynaldy/social-media-api/internal/domain/pool"
	"github.com/bryanreynaldy/social-media-api/internal/domain/task"
	"github.com/bryanreynaldy/social-media-api/internal/fetch"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/monitoring"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/tracing"
	"github.com/bryanreynaldy/social-media-api/internal/storage/history"
)

const (
	readHeaderTimeout = 10 * time.Second
	warmTimeout       = 90 * time.Second
	drainTimeout      = 15 * time.Second
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router      *gin.Engine
	httpSrv     *http.Server
	pool        *pool.Pool
	coordinator *coordinator.Coordinator
	cache       cache.Cache
	history     history.Store
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
		FilePath:    cfg.Logging.FilePath,
		MaxSizeMB:   100,
		MaxBackups:  3,
		MaxAgeDays:  28,
	})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("Falling back to default logger", zap.Error(err))
	}

	logger.Info("Initializing extraction service",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Int("max_sessions", cfg.Pool.MaxSessions),
	)

	// Metrics first: nearly every component reports into them.
	metrics := monitoring.NewMetrics()

	tracer := tracing.New("social-media-api", logger.Logger)

	// A missing browser binary is startup-fatal: the service cannot do
	// its job without one.
	launcher, err := browser.NewLauncher(cfg.Browser, logger)
	if err != nil {
		return nil, fmt.Errorf("browser launcher: %w", err)
	}

	sessionPool := pool.New(cfg.Pool, pool.LauncherFunc(func(ctx context.Context) (pool.Session, error) {
		h, err := launcher.Start(ctx)
		if err != nil {
			return nil, err
		}
		return h, nil
	}), logger).WithMetrics(metrics)

	executor := task.NewExecutor(cfg.Executor.StepTimeout, cfg.Executor.TaskTimeout, logger).
		WithMetrics(metrics)

	fetcher := fetch.NewClient(cfg.Fetch, logger).WithMetrics(metrics)

	resultCache, err := cache.New(cfg.Cache, logger, metrics)
	if err != nil {
		logger.Warn("Result cache unavailable, continuing without", zap.Error(err))
		resultCache = cache.Noop{}
	}

	var store history.Store = history.Noop{}
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History, logger)
		if err != nil {
			logger.Warn("History store unavailable, continuing without", zap.Error(err))
			store = history.Noop{}
		}
	}

	coord := coordinator.New(
		coordinator.OptionsFromConfig(cfg),
		sessionPool,
		executor,
		platform.Defaults(fetcher),
		logger,
	).WithCache(resultCache).WithHistory(store).WithMetrics(metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(cfg.RateLimit))
	}

	handlers := apihttp.NewHandlers(coord, fetcher, resultCache, metrics, cfg)
	wsHandler := ws.NewHandler(coord.Events(), logger).WithMetrics(metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/platforms", handlers.Platforms)

	// Raw task API
	router.POST("/task", handlers.SubmitTask)
	router.GET("/tasks", handlers.ListTasks)
	router.GET("/tasks/:id", handlers.GetTask)

	// Extraction pipeline
	router.POST("/extract", handlers.Extract)
	router.POST("/extract-single", handlers.ExtractSingle)

	// WebSocket event stream
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics endpoints
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/metrics/json", handlers.MetricsJSON)

	logger.Info("Server initialized successfully")

	return &Server{
		router:      router,
		pool:        sessionPool,
		coordinator: coord,
		cache:       resultCache,
		history:     store,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
	}, nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	if s.config.Pool.WarmSessions > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), warmTimeout)
		err := s.pool.Warm(ctx)
		cancel()
		if err != nil {
			s.logger.Warn("Session warm-up incomplete", zap.Error(err))
		}
	}

	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close gracefully shuts down the server: stop accepting requests,
// drain the pool, then close storage.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP shutdown did not drain cleanly", zap.Error(err))
		}
	}

	if err := s.pool.Close(ctx); err != nil {
		s.logger.Warn("Pool closed with sessions outstanding", zap.Error(err))
	}

	if err := s.cache.Close(); err != nil {
		s.logger.Warn("Cache close failed", zap.Error(err))
	}
	if err := s.history.Close(); err != nil {
		s.logger.Warn("History close failed", zap.Error(err))
	}

	s.logger.Sync()
	return nil
}
