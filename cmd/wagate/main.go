package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wagate/internal/config"
	"wagate/internal/constants"
	"wagate/internal/database"
	"wagate/internal/models"
	"wagate/internal/queue"
	"wagate/internal/retry"
	"wagate/internal/service"
	"wagate/internal/tracing"
	"wagate/pkg/whatsapp"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "", "Path to configuration file (optional)")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wagate %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Failed to load .env file")
	}

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting wagate")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			level = logrus.InfoLevel
		}
		logger.SetLevel(level)
	}

	// Initialize OpenTelemetry tracing
	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: constants.DefaultDatabaseBackoffMs * time.Millisecond,
		MaxDelay:     constants.DefaultDatabaseMaxBackoffMs * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}

	deliveryQueue := queue.NewRedisQueue(redisClient, constants.DeliveryQueueName, logger)

	engineClient := whatsapp.NewEngineClient(whatsapp.EngineConfig{
		BaseURL:       cfg.Transport.APIBaseURL,
		APIKey:        cfg.Transport.APIKey,
		Timeout:       time.Duration(cfg.Transport.TimeoutSec) * time.Second,
		LaunchTimeout: time.Duration(cfg.Transport.LaunchTimeoutSec) * time.Second,
	})

	automation := service.NewAutomation(db, nil, logger)

	webhookURL := fmt.Sprintf("http://localhost:%s/events", cfg.Server.Port)
	if url := os.Getenv("EVENTS_WEBHOOK_URL"); url != "" {
		webhookURL = url
	}
	manager := service.NewSessionManager(engineClient, db, automation, cfg.Sessions.Dir, webhookURL, logger)

	messenger := service.NewMessenger(db, deliveryQueue, logger)
	worker := service.NewDeliveryWorker(db, manager, deliveryQueue, cfg.Scheduler, logger)
	deliveryQueue.Start(ctx, cfg.Sessions.WorkerCount, worker.Process)

	monitor := service.NewConnectionMonitor(manager, db,
		time.Duration(cfg.Monitor.IntervalSec)*time.Second,
		time.Duration(cfg.Monitor.StartupDelaySec)*time.Second,
		logger)
	monitor.Start(ctx)
	defer monitor.Stop()

	rehydrate(ctx, manager, cfg.Sessions.AutoStartIDs, logger)

	if *configPath != "" {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.OnConfigChange(func(updated *models.Config) {
			if level, err := logrus.ParseLevel(updated.LogLevel); err == nil {
				logger.SetLevel(level)
			}
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher failed")
			}
		}()
	}

	server := NewServer(cfg, db, manager, messenger, automation, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	deliveryQueue.Wait()
	logger.Info("Server shutdown completed")
	return nil
}

// rehydrate restores sessions that survive on disk and launches the
// configured auto-start clients. A stored DISCONNECTED status blocks
// both paths; those clients need an explicit reconnect.
func rehydrate(ctx context.Context, manager *service.SessionManager, autoStartIDs []string, logger *logrus.Logger) {
	restored := manager.RestoreStoredSessions(ctx)
	if len(restored) > 0 {
		logger.WithField("count", len(restored)).Info("Restored stored sessions")
	}

	seen := make(map[string]bool, len(restored))
	for _, id := range restored {
		seen[id] = true
	}

	for _, clientID := range autoStartIDs {
		if seen[clientID] {
			continue
		}
		allowed, err := manager.AllowAutoStart(ctx, clientID)
		if err != nil {
			logger.WithError(err).WithField("client_id", clientID).Warn("Failed to check auto-start eligibility")
			continue
		}
		if !allowed {
			logger.WithField("client_id", clientID).Info("Skipping auto-start for disconnected client")
			continue
		}
		if _, err := manager.Start(ctx, clientID, service.StartOptions{}); err != nil {
			logger.WithError(err).WithField("client_id", clientID).Error("Failed to auto-start session")
		}
	}
}
