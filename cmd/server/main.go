package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/kooshapari/swarmcoordinator/internal/api/routes"
	"github.com/kooshapari/swarmcoordinator/internal/config"
	"github.com/kooshapari/swarmcoordinator/internal/eventstream"
	"github.com/kooshapari/swarmcoordinator/internal/swarm"
	"github.com/kooshapari/swarmcoordinator/pkg/logger"
)

// Server wires a running coordinator/queen to an HTTP control plane and
// event-stream hub.
type Server struct {
	config      *config.Config
	logger      *logrus.Logger
	router      *gin.Engine
	httpServer  *http.Server
	coordinator *swarm.Coordinator
	queen       *swarm.Queen
	hub         *eventstream.Hub
	memory      swarm.MemoryService
}

// NewServer constructs a Server from configuration, initializing the
// coordinator, queen, memory backend and event stream hub.
func NewServer() (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)

	coordinator := swarm.NewCoordinator(cfg.Swarm.ToSwarmConfig(), log)
	if err := coordinator.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize coordinator: %w", err)
	}

	var memory swarm.MemoryService
	if cfg.Swarm.MemoryEnabled && cfg.Redis.Addr != "" {
		redisMem, err := swarm.NewRedisMemoryService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log)
		if err != nil {
			logger.WithFields(log, logrus.Fields{"backend": "redis", "addr": cfg.Redis.Addr}).
				WithError(err).Warn("failed to connect to redis memory backend, falling back to in-memory")
			memory = swarm.NewInMemoryMemoryService()
		} else {
			memory = redisMem
		}
	} else {
		memory = swarm.NewInMemoryMemoryService()
	}

	neural := swarm.NewStubNeuralSystem(log)
	queen := swarm.NewQueen(coordinator, neural, memory, log)

	hub := eventstream.NewHub(coordinator.Events(), log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	allowedOrigins := []string{}
	if cfg.Environment == "development" {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	routes.SetupRoutes(router, coordinator, queen, hub, log, cfg.Environment, allowedOrigins)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	return &Server{
		config:      cfg,
		logger:      log,
		router:      router,
		httpServer:  httpServer,
		coordinator: coordinator,
		queen:       queen,
		hub:         hub,
		memory:      memory,
	}, nil
}

// Start launches the event stream hub and the HTTP server.
func (s *Server) Start() error {
	logger.WithComponent(s.logger, "server").Info("starting swarm coordinator server")

	go s.hub.Start()

	logger.WithComponent(s.logger, "server").WithField("port", s.config.Server.Port).Info("starting HTTP server")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithComponent(s.logger, "server").WithError(err).Fatal("failed to start HTTP server")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server, event hub and coordinator.
func (s *Server) Stop(ctx context.Context) error {
	logger.WithComponent(s.logger, "server").Info("shutting down swarm coordinator server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		logger.WithComponent(s.logger, "server").WithError(err).Error("failed to shut down HTTP server gracefully")
	}

	s.hub.Stop()

	if err := s.coordinator.Shutdown(); err != nil {
		logger.WithComponent(s.logger, "server").WithError(err).Error("failed to shut down coordinator gracefully")
	}

	logger.WithComponent(s.logger, "server").Info("swarm coordinator server stopped")
	return nil
}

func main() {
	server, err := NewServer()
	if err != nil {
		logrus.WithError(err).Fatal("failed to create server")
	}

	if err := server.Start(); err != nil {
		logrus.WithError(err).Fatal("failed to start server")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logrus.WithError(err).Error("failed to stop server gracefully")
		os.Exit(1)
	}

	logrus.Info("server exited cleanly")
}
