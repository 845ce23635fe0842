package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Unpackyourdream-Paprika/sam3dserver/api/handlers"
	"github.com/Unpackyourdream-Paprika/sam3dserver/config"
	"github.com/Unpackyourdream-Paprika/sam3dserver/internal/metrics"
	"github.com/Unpackyourdream-Paprika/sam3dserver/internal/server"
	"github.com/Unpackyourdream-Paprika/sam3dserver/render"
	"github.com/Unpackyourdream-Paprika/sam3dserver/storage"
	"github.com/Unpackyourdream-Paprika/sam3dserver/threed"
)

// Server wires the stage node service together.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	layout        *storage.Layout
	stageHandler  *handlers.StageHandler
	healthHandler *handlers.HealthHandler

	metricsCollector *metrics.Collector

	rateLimiterCancel context.CancelFunc
}

// NewServer creates the server from a validated configuration.
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
	}
}

// Start initializes all components and starts the HTTP and metrics servers.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("sam3dserver", s.logger)

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

func (s *Server) initHandlers() error {
	s.layout = storage.NewLayout(s.cfg.Storage.Root)
	if err := s.layout.EnsureDirs(); err != nil {
		return err
	}

	converter, err := threed.NewConverter(threed.Config{
		APIKey:          s.cfg.Fal.APIKey,
		QueueBaseURL:    s.cfg.Fal.QueueBaseURL,
		RestBaseURL:     s.cfg.Fal.RestBaseURL,
		Profile:         s.cfg.Fal.Profile,
		PollInterval:    s.cfg.Fal.PollInterval,
		JobTimeout:      s.cfg.Fal.JobTimeout,
		DownloadTimeout: s.cfg.Fal.DownloadTimeout,
	}, s.logger)
	if err != nil {
		return err
	}

	renderer := render.NewService(s.cfg.Render.Backend, s.logger)

	s.stageHandler = handlers.NewStageHandler(
		converter, renderer, s.layout, s.cfg.Server.BaseURL, s.metricsCollector, s.logger)
	s.healthHandler = handlers.NewHealthHandler(s.layout, s.logger)

	s.logger.Info("Handlers initialized",
		zap.String("profile", s.cfg.Fal.Profile),
		zap.String("render_backend", string(renderer.Kind())),
	)
	return nil
}

func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.healthHandler.HandleRoot)
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("/api/stage/convert", post(s.stageHandler.HandleConvert))
	mux.HandleFunc("/api/stage/render", post(s.stageHandler.HandleRender))

	// Generated artifacts. Models go through the handler for the GLB
	// content type; renders are plain static files.
	mux.HandleFunc("/models/", s.stageHandler.HandleModel)
	mux.Handle("/renders/", http.StripPrefix("/renders/",
		http.FileServer(http.Dir(s.layout.RendersDir()))))

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.AllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.ConvertRPS, s.cfg.Server.ConvertBurst, s.logger, "/api/stage/convert"),
		MetricsMiddleware(s.metricsCollector),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// post restricts a handler to the POST method.
func post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

// WaitForShutdown blocks until a termination signal, then shuts down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully stops all servers.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// Drain both servers in parallel; each Shutdown respects its own
	// configured timeout.
	g, gctx := errgroup.WithContext(ctx)
	if s.httpManager != nil {
		g.Go(func() error { return s.httpManager.Shutdown(gctx) })
	}
	if s.metricsManager != nil {
		g.Go(func() error { return s.metricsManager.Shutdown(gctx) })
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("server shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
