// Package app provides the main application orchestration and integration layer.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"

	"github.com/geekxflood/proteus/internal/listener"
	"github.com/geekxflood/proteus/internal/loader"
	"github.com/geekxflood/proteus/internal/metrics"
	"github.com/geekxflood/proteus/internal/storage"
	"github.com/geekxflood/proteus/internal/types"
)

// AppConfig holds configuration for the main application
type AppConfig struct {
	Name            string        `json:"name"`
	Version         string        `json:"version"`
	LogLevel        string        `json:"log_level"`
	LogFormat       string        `json:"log_format"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultAppConfig returns a default application configuration
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Name:            "proteus",
		Version:         "1.0.0",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 30 * time.Second,
	}
}

// Application represents the capture and decode service
type Application struct {
	config         *AppConfig
	configProvider config.Provider

	// Core components
	captureLoader *loader.Loader
	listener      *listener.Listener
	storage       *storage.Storage
	metrics       *metrics.MetricsManager

	// Application state
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logging.Logger

	// Statistics
	stats *AppStats
	mu    sync.RWMutex
}

// AppStats tracks application-wide statistics
type AppStats struct {
	StartTime         time.Time              `json:"start_time"`
	Uptime            time.Duration          `json:"uptime"`
	TotalRecords      int64                  `json:"total_records"`
	TotalDecodeErrors int64                  `json:"total_decode_errors"`
	ComponentStats    map[string]interface{} `json:"component_stats"`
	HealthStatus      string                 `json:"health_status"`
	LastError         string                 `json:"last_error,omitempty"`
	LastErrorTime     *time.Time             `json:"last_error_time,omitempty"`
}

// NewApplication creates a new capture and decode service application
func NewApplication(configManager config.Manager) (*Application, error) {
	if configManager == nil {
		return nil, fmt.Errorf("configuration manager cannot be nil")
	}

	configProvider := configManager.(config.Provider)

	appConfig := DefaultAppConfig()

	if name, err := configProvider.GetString("app.name", appConfig.Name); err == nil {
		appConfig.Name = name
	}

	if version, err := configProvider.GetString("app.version", appConfig.Version); err == nil {
		appConfig.Version = version
	}

	if logLevel, err := configProvider.GetString("app.log_level", appConfig.LogLevel); err == nil {
		appConfig.LogLevel = logLevel
	}

	if logFormat, err := configProvider.GetString("app.log_format", appConfig.LogFormat); err == nil {
		appConfig.LogFormat = logFormat
	}

	if shutdownTimeout, err := configProvider.GetDuration("app.shutdown_timeout", appConfig.ShutdownTimeout); err == nil {
		appConfig.ShutdownTimeout = shutdownTimeout
	}

	logger, _, err := logging.NewLogger(logging.Config{
		Level:  appConfig.LogLevel,
		Format: appConfig.LogFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:         appConfig,
		configProvider: configProvider,
		ctx:            ctx,
		cancel:         cancel,
		logger:         logger,
		stats: &AppStats{
			StartTime:      time.Now(),
			ComponentStats: make(map[string]interface{}),
			HealthStatus:   "starting",
		},
	}

	logger.Info("Creating capture and decode service",
		"name", appConfig.Name,
		"version", appConfig.Version)

	return app, nil
}

// Initialize initializes all application components
func (a *Application) Initialize() error {
	a.logger.Info("Initializing application components")

	if err := a.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := a.initializeMetrics(); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := a.initializeLoader(); err != nil {
		return fmt.Errorf("failed to initialize capture loader: %w", err)
	}

	// Initialize the listener last, as it starts accepting datagrams
	if err := a.initializeListener(); err != nil {
		return fmt.Errorf("failed to initialize listener: %w", err)
	}

	a.stats.HealthStatus = "healthy"
	a.logger.Info("Application components initialized successfully")

	return nil
}

// Run starts the application and blocks until shutdown
func (a *Application) Run() error {
	a.logger.Info("Starting capture and decode service")

	if err := a.metrics.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// Decode the capture directories before accepting network input
	if err := a.captureLoader.LoadAll(); err != nil {
		return fmt.Errorf("failed to load capture files: %w", err)
	}

	if err := a.listener.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}

	a.metrics.SetComponentHealth("listener", true)
	a.metrics.SetComponentHealth("storage", true)
	a.metrics.SetReady(true)

	a.wg.Add(1)
	go a.statsUpdater()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	a.logger.Info("Application started successfully. Listening for encoded blobs...")

	select {
	case sig := <-sigChan:
		a.logger.Info("Received shutdown signal", "signal", sig.String())
		return a.Shutdown()
	case <-a.ctx.Done():
		a.logger.Info("Application context cancelled")
		return a.ctx.Err()
	}
}

// Shutdown gracefully shuts down the application
func (a *Application) Shutdown() error {
	a.logger.Info("Shutting down application")
	a.stats.HealthStatus = "shutting_down"

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer shutdownCancel()

	a.metrics.SetReady(false)

	a.cancel()

	// Shutdown components in reverse order
	var shutdownErrors []error

	if a.listener != nil {
		a.logger.Info("Shutting down listener")
		if err := a.listener.Stop(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("listener shutdown error: %w", err))
		}
	}

	if a.captureLoader != nil {
		a.logger.Info("Shutting down capture loader")
		if err := a.captureLoader.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("loader shutdown error: %w", err))
		}
	}

	if a.storage != nil {
		a.logger.Info("Shutting down storage")
		if err := a.storage.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("storage shutdown error: %w", err))
		}
	}

	if a.metrics != nil {
		a.logger.Info("Shutting down metrics server")
		if err := a.metrics.Stop(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics shutdown error: %w", err))
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("All background goroutines stopped")
	case <-shutdownCtx.Done():
		a.logger.Warn("Shutdown timeout reached, forcing exit")
		shutdownErrors = append(shutdownErrors, fmt.Errorf("shutdown timeout"))
	}

	a.stats.HealthStatus = "stopped"

	if len(shutdownErrors) > 0 {
		a.logger.Error("Shutdown completed with errors", "error_count", len(shutdownErrors))
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	a.logger.Info("Application shutdown completed successfully")
	return nil
}

// initializeStorage initializes the storage component
func (a *Application) initializeStorage() error {
	a.logger.Info("Initializing storage")

	store, err := storage.NewStorage(a.configProvider)
	if err != nil {
		return err
	}

	a.storage = store
	return nil
}

// initializeMetrics initializes the metrics component
func (a *Application) initializeMetrics() error {
	a.logger.Info("Initializing metrics")

	manager, err := metrics.NewMetricsManager(a.configProvider, a.logger)
	if err != nil {
		return err
	}

	a.metrics = manager
	return nil
}

// initializeLoader initializes the capture loader component
func (a *Application) initializeLoader() error {
	a.logger.Info("Initializing capture loader")

	captureLoader, err := loader.NewLoader(a.configProvider)
	if err != nil {
		return err
	}

	captureLoader.SetRecordHandler(a.handleRecord)
	a.captureLoader = captureLoader
	return nil
}

// initializeListener initializes the datagram listener component
func (a *Application) initializeListener() error {
	a.logger.Info("Initializing listener")

	lst, err := listener.NewListener(a.configProvider, listener.RecordSinkFunc(a.handleRecord))
	if err != nil {
		return err
	}

	a.listener = lst
	return nil
}

// handleRecord routes one decode record to storage and metrics
func (a *Application) handleRecord(record *types.DecodeRecord) {
	a.mu.Lock()
	a.stats.TotalRecords++
	if record.Status == types.StatusError {
		a.stats.TotalDecodeErrors++
		a.stats.LastError = record.Error
		now := time.Now()
		a.stats.LastErrorTime = &now
	}
	a.mu.Unlock()

	a.metrics.RecordDecode(record)

	if err := a.storage.StoreRecord(record); err != nil {
		a.logger.Error("Failed to store decode record",
			"source", record.Source,
			"error", err.Error())
		a.metrics.GetStorageMetrics().StorageErrors.Inc()
		return
	}
	a.metrics.GetStorageMetrics().RecordsStored.Inc()

	a.logger.Debug("Decode record handled",
		"source", record.Source,
		"transport", record.Transport,
		"status", record.Status,
		"root_type", record.RootType,
		"node_count", record.NodeCount)
}

// statsUpdater periodically updates application statistics
func (a *Application) statsUpdater() {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.updateStats()
		}
	}
}

// updateStats updates application statistics
func (a *Application) updateStats() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stats.Uptime = time.Since(a.stats.StartTime)

	if a.listener != nil {
		a.stats.ComponentStats["listener"] = a.listener.GetStats()
	}

	if a.captureLoader != nil {
		a.stats.ComponentStats["loader"] = a.captureLoader.GetStats()
	}

	if a.storage != nil {
		if storageStats, err := a.storage.GetStats(); err == nil {
			a.stats.ComponentStats["storage"] = storageStats
		}
	}
}

// GetStats returns application statistics
func (a *Application) GetStats() *AppStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := *a.stats
	stats.Uptime = time.Since(a.stats.StartTime)

	stats.ComponentStats = make(map[string]interface{})
	for key, value := range a.stats.ComponentStats {
		stats.ComponentStats[key] = value
	}

	return &stats
}

// GetConfig returns the application configuration
func (a *Application) GetConfig() *AppConfig {
	return a.config
}

// GetLogger returns the application logger
func (a *Application) GetLogger() logging.Logger {
	return a.logger
}

// IsHealthy returns whether the application is healthy
func (a *Application) IsHealthy() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats.HealthStatus == "healthy"
}
