package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labwatch/labwatch/internal/api"
	"github.com/labwatch/labwatch/internal/auth"
	"github.com/labwatch/labwatch/internal/config"
	"github.com/labwatch/labwatch/internal/credentials"
	"github.com/labwatch/labwatch/internal/database"
	"github.com/labwatch/labwatch/internal/driver"
	"github.com/labwatch/labwatch/internal/eventbus"
	"github.com/labwatch/labwatch/internal/maintenance"
	"github.com/labwatch/labwatch/internal/poller"
	"github.com/labwatch/labwatch/internal/status"
	"github.com/labwatch/labwatch/internal/store"
	"github.com/labwatch/labwatch/internal/stream"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("starting labwatch server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"poll_interval", cfg.Poller.GetInterval(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Migrations failed: %v", err)
	}

	pool, err := database.InitPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("DB init failed: %v", err)
	}
	defer pool.Close()

	st := store.NewPostgresStore(pool)

	// Auth and credential decryption
	authService, err := auth.NewService(
		cfg.Auth.JWTSecret,
		cfg.Auth.AdminUsername,
		cfg.Auth.AdminPassword,
		cfg.Auth.GetJWTExpiry(),
	)
	if err != nil {
		log.Fatalf("Failed to initialize auth service: %v", err)
	}

	credCipher, err := auth.NewCipher(cfg.Auth.EncryptionKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential cipher: %v", err)
	}
	credService := credentials.NewService(credCipher)

	// Distribution fan-out: one bus for internal consumers, one broadcast
	// registry per streaming topic.
	bus := eventbus.New(logger)

	metricsRegistry := stream.NewRegistry(stream.TopicMetrics, logger)
	statusRegistry := stream.NewRegistry(stream.TopicStatus, logger)
	maintenanceRegistry := stream.NewRegistry(stream.TopicMaintenance, logger)

	statusCache := status.NewCache()
	statusPublisher := status.NewPublisher(statusCache, statusRegistry, logger)
	unsubscribe := bus.Subscribe(statusPublisher.Handle)
	defer unsubscribe()

	maintenanceState := maintenance.NewState(maintenanceRegistry)

	// Poll engine
	factory := driver.NewFactory(cfg.Poller.GetCapabilityTimeout(), logger)
	scheduler := poller.New(
		st,
		credService,
		factory,
		bus,
		metricsRegistry,
		logger,
		poller.Config{
			Interval:          cfg.Poller.GetInterval(),
			CapabilityTimeout: cfg.Poller.GetCapabilityTimeout(),
		},
	)
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface
	endpoints := map[string]*stream.Endpoint{
		stream.TopicMetrics:     stream.NewEndpoint(metricsRegistry, cfg.Stream.SendBufferSize, cfg.Stream.GetWriteTimeout(), logger),
		stream.TopicStatus:      stream.NewEndpoint(statusRegistry, cfg.Stream.SendBufferSize, cfg.Stream.GetWriteTimeout(), logger),
		stream.TopicMaintenance: stream.NewEndpoint(maintenanceRegistry, cfg.Stream.SendBufferSize, cfg.Stream.GetWriteTimeout(), logger),
	}

	handler := api.NewHandler(
		authService,
		st,
		credService,
		factory,
		statusCache,
		maintenanceState,
		scheduler,
		cfg.Server.GetReadTimeout(),
		logger,
	)
	router := api.NewRouter(handler, authService, endpoints, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped gracefully")
}

func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
