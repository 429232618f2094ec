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

	"github.com/staminads/staminads-sub000/internal/collector"
	"github.com/staminads/staminads-sub000/internal/config"
	"github.com/staminads/staminads-sub000/internal/focus"
	"github.com/staminads/staminads-sub000/internal/heartbeat"
	"github.com/staminads/staminads-sub000/internal/lifecycle"
	"github.com/staminads/staminads-sub000/internal/logger"
	"github.com/staminads/staminads-sub000/internal/models"
	"github.com/staminads/staminads-sub000/internal/queue"
	"github.com/staminads/staminads-sub000/internal/server"
	"github.com/staminads/staminads-sub000/internal/service"
	"github.com/staminads/staminads-sub000/internal/storage"
	"github.com/staminads/staminads-sub000/internal/timeutil"
	"github.com/staminads/staminads-sub000/internal/transport"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	flag.Parse()

	// Load .env overrides before the config is read.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	sessionID := cfg.Workspace.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
		log.Info("Generated session ID", zap.String("session_id", sessionID))
	}

	log.Info("Starting engagement agent",
		zap.String("env", cfg.Env),
		zap.String("workspace_id", cfg.Workspace.ID),
		zap.String("config_path", *configPath),
	)

	clock := timeutil.SystemClock{}
	sched := timeutil.SystemScheduler{}

	// Persistent storage with transparent in-memory fallback.
	sqliteStore, err := storage.NewSQLiteStore(cfg.StoragePath, log.Logger)
	var store storage.Store
	if err != nil {
		log.Warn("Persistent storage unavailable, running in memory", zap.Error(err))
		store = storage.NewMemoryStore()
	} else {
		defer func() {
			if err := sqliteStore.Close(); err != nil {
				log.Error("Failed to close storage", zap.Error(err))
			}
		}()
		store = storage.NewFallback(sqliteStore, log.Logger)
	}

	offlineQueue := queue.NewOfflineQueue(store, clock, queue.Options{
		Capacity:    cfg.Queue.Capacity,
		MaxAge:      time.Duration(cfg.Queue.MaxAgeHours) * time.Hour,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: time.Duration(cfg.Queue.BackoffBaseMs) * time.Millisecond,
		BackoffCap:  time.Duration(cfg.Queue.BackoffCapMs) * time.Millisecond,
	}, log.Logger)

	sender := transport.NewSender(
		transport.NewBeaconChannel(cfg.Collector.Endpoint, log.Logger),
		transport.NewKeepaliveChannel(cfg.Collector.Endpoint, log.Logger),
		transport.NewSyncChannel(cfg.Collector.Endpoint, log.Logger),
		offlineQueue,
		clock,
		log.Logger,
	)

	tierCfg := cfg.Heartbeat.Tiers
	if len(tierCfg) == 0 {
		tierCfg = config.DefaultTiers()
	}
	tiers := make([]heartbeat.Tier, 0, len(tierCfg))
	for _, t := range tierCfg {
		tiers = append(tiers, heartbeat.Tier{
			After:   time.Duration(t.After) * time.Second,
			Desktop: time.Duration(t.Desktop) * time.Second,
			Mobile:  time.Duration(t.Mobile) * time.Second,
		})
	}

	hb, err := heartbeat.NewScheduler(heartbeat.Options{
		Tiers:             tiers,
		MaxDuration:       time.Duration(cfg.Heartbeat.MaxDuration) * time.Second,
		DeviceClass:       models.DeviceClass(cfg.Device.Class),
		ResetOnNavigation: cfg.Heartbeat.ResetOnNavigation,
	}, clock, sched, log.Logger)
	if err != nil {
		log.Fatal("Invalid heartbeat tier table", zap.Error(err))
	}

	focusTracker := focus.NewTracker(clock, sched, log.Logger)
	actionCollector := collector.NewActionCollector(
		cfg.Batch.Size,
		time.Duration(cfg.Batch.FlushInterval)*time.Second,
		sched,
		log.Logger,
	)

	bus := lifecycle.NewBus()

	engagement := service.NewEngagementService(
		focusTracker,
		hb,
		actionCollector,
		sender,
		bus,
		clock,
		sched,
		service.Options{
			WorkspaceID:        cfg.Workspace.ID,
			SessionID:          sessionID,
			QueueFlushInterval: time.Duration(cfg.Queue.FlushInterval) * time.Second,
		},
		log.Logger,
	)

	if err := engagement.Start(); err != nil {
		log.Fatal("Failed to start engagement service", zap.Error(err))
	}

	var statusHTTPServer *http.Server
	if cfg.Server.Enabled {
		statusServer := server.NewStatusServer(engagement, sessionID, log.Logger)
		addr := fmt.Sprintf("localhost:%d", cfg.Server.Port)
		statusHTTPServer = &http.Server{
			Addr:         addr,
			Handler:      statusServer.Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			log.Info("Starting status server", zap.String("address", addr))
			if err := statusHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("Status server error", zap.Error(err))
			}
		}()
	}

	log.Info("Engagement agent started successfully",
		zap.String("session_id", sessionID),
		zap.String("collector_endpoint", cfg.Collector.Endpoint),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))

	if statusHTTPServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := statusHTTPServer.Shutdown(ctx); err != nil {
			log.Warn("Status server shutdown error", zap.Error(err))
		}
	}

	// The process going away is the page tearing down: publish the unload
	// signal so the flush-once path runs, then stop everything.
	bus.Publish(lifecycle.SignalBeforeUnload)

	done := make(chan struct{})
	go func() {
		engagement.Stop()
		close(done)
	}()
	select {
	case <-done:
		log.Info("Engagement service stopped successfully")
	case <-time.After(3 * time.Second):
		log.Warn("Shutdown timeout reached, forcing immediate exit")
		os.Exit(1)
	}

	log.Info("Engagement agent stopped")
}
