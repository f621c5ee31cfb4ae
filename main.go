package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BanziSeo/habiOS-sub002/src/backup"
	"github.com/BanziSeo/habiOS-sub002/src/config"
	"github.com/BanziSeo/habiOS-sub002/src/database"
	"github.com/BanziSeo/habiOS-sub002/src/handlers"
	"github.com/BanziSeo/habiOS-sub002/src/importer"
	"github.com/BanziSeo/habiOS-sub002/src/logger"
	"github.com/BanziSeo/habiOS-sub002/src/security"
	"github.com/BanziSeo/habiOS-sub002/src/services"
	"github.com/BanziSeo/habiOS-sub002/src/settings"
	"github.com/BanziSeo/habiOS-sub002/src/writequeue"
	"github.com/patrickmn/go-cache"
)

const appVersion = "1.3.0"

func openDatabase() *database.Handle {
	var handle *database.Handle
	var err error
	for attempt := 1; attempt <= config.Cfg.DBConnectRetries; attempt++ {
		handle, err = database.Open(config.Cfg.DatabasePath)
		if err == nil {
			return handle
		}
		logger.L.Warn("Database open failed, retrying",
			"attempt", attempt, "maxAttempts", config.Cfg.DBConnectRetries, "error", err)
		time.Sleep(config.Cfg.DBConnectRetryDelay)
	}
	logger.L.Error("Could not open database, giving up", "path", config.Cfg.DatabasePath, "error", err)
	os.Exit(1)
	return nil
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)

	logger.L.Info("habiOS journal engine starting...", "version", appVersion)

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	handle := openDatabase()
	if err := database.Migrate(handle.DB(), database.JournalMigrations()); err != nil {
		logger.L.Error("Schema migration failed", "error", err)
		handle.Close()
		os.Exit(1)
	}

	settingsStore, err := settings.Open(config.Cfg.SettingsPath)
	if err != nil {
		logger.L.Error("Could not load settings file", "path", config.Cfg.SettingsPath, "error", err)
		handle.Close()
		os.Exit(1)
	}

	queue := writequeue.New(handle, config.Cfg.WriteQueueCapacity)
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	authService := security.NewAuthService(config.Cfg.JWTSecret, config.Cfg.PasscodeHash, config.Cfg.SessionExpiry)
	journalService := services.NewJournalService(handle, queue, reportCache)
	importEngine := importer.New(queue, journalService.InvalidateAccountCache)
	backupEngine := backup.New(handle, queue, settingsStore, config.Cfg.BackupDir, appVersion,
		config.Cfg.DBConnectRetries, config.Cfg.DBConnectRetryDelay)

	router := handlers.NewRouter(
		authService,
		handlers.NewAuthHandler(authService),
		handlers.NewJournalHandler(journalService),
		handlers.NewImportHandler(importEngine),
		handlers.NewBackupHandler(backupEngine),
		handlers.NewSettingsHandler(settingsStore),
	)

	server := &http.Server{
		Addr:         ":" + config.Cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.L.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stdlog.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.L.Info("Shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}
	queue.Shutdown(config.Cfg.ShutdownDrainWait)
	if err := handle.Close(); err != nil {
		logger.L.Warn("Database close failed", "error", err)
	}
	logger.L.Info("Shutdown complete")
}
