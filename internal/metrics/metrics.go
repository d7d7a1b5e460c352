// Package metrics provides Prometheus metrics integration and system monitoring
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geekxflood/proteus/internal/types"
)

// MetricsConfig defines the configuration for the metrics system
type MetricsConfig struct {
	Enabled        bool          `json:"enabled"`
	ListenAddress  string        `json:"listen_address"`
	MetricsPath    string        `json:"metrics_path"`
	HealthPath     string        `json:"health_path"`
	ReadyPath      string        `json:"ready_path"`
	UpdateInterval time.Duration `json:"update_interval"`
	Namespace      string        `json:"namespace"`
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		Enabled:        true,
		ListenAddress:  ":9090",
		MetricsPath:    "/metrics",
		HealthPath:     "/health",
		ReadyPath:      "/ready",
		UpdateInterval: 30 * time.Second,
		Namespace:      "proteus",
	}
}

// MetricsManager manages Prometheus metrics and health endpoints
type MetricsManager struct {
	config   *MetricsConfig
	logger   logging.Logger
	registry *prometheus.Registry
	server   *http.Server

	// Application metrics
	decodeMetrics  *DecodeMetrics
	storageMetrics *StorageMetrics
	loaderMetrics  *LoaderMetrics
	systemMetrics  *SystemMetrics

	// Health status
	healthStatus map[string]bool
	readyStatus  bool
	mu           sync.RWMutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DecodeMetrics contains BER decode processing metrics
type DecodeMetrics struct {
	BlobsReceived  prometheus.Counter
	DecodesOK      prometheus.Counter
	DecodesFailed  prometheus.Counter
	DecodeDuration prometheus.Histogram
	PayloadSize    prometheus.Histogram
	TreeDepth      prometheus.Histogram
	DecodesByType  *prometheus.CounterVec
	ErrorsByKind   *prometheus.CounterVec
}

// StorageMetrics contains storage system metrics
type StorageMetrics struct {
	RecordsStored   prometheus.Counter
	StorageErrors   prometheus.Counter
	QueryDuration   prometheus.Histogram
	DatabaseSize    prometheus.Gauge
	RecordsRetained prometheus.Gauge
}

// LoaderMetrics contains capture loader metrics
type LoaderMetrics struct {
	FilesLoaded  prometheus.Gauge
	FileErrors   prometheus.Gauge
	ReloadEvents prometheus.Counter
	ScanDuration prometheus.Histogram
}

// SystemMetrics contains system resource metrics
type SystemMetrics struct {
	MemoryUsage    prometheus.Gauge
	GoroutineCount prometheus.Gauge
	GCDuration     prometheus.Histogram
	Uptime         prometheus.Gauge
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(cfg config.Provider, logger logging.Logger) (*MetricsManager, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	metricsConfig, err := loadMetricsConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics configuration: %w", err)
	}

	registry := prometheus.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())

	manager := &MetricsManager{
		config:       metricsConfig,
		logger:       logger.With("component", "metrics"),
		registry:     registry,
		healthStatus: make(map[string]bool),
		readyStatus:  false,
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := manager.initializeMetrics(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return manager, nil
}

// initializeMetrics creates and registers all Prometheus metrics
func (m *MetricsManager) initializeMetrics() error {
	namespace := m.config.Namespace

	m.decodeMetrics = &DecodeMetrics{
		BlobsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blobs_received_total",
			Help:      "Total number of encoded blobs received for decoding",
		}),
		DecodesOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_ok_total",
			Help:      "Total number of blobs decoded successfully",
		}),
		DecodesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_failed_total",
			Help:      "Total number of blobs that failed to decode",
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding blobs",
			Buckets:   prometheus.DefBuckets,
		}),
		PayloadSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "blob_size_bytes",
			Help:      "Size of received encoded blobs",
			Buckets:   []float64{64, 128, 256, 512, 1024, 2048, 4096, 8192, 16384, 65536},
		}),
		TreeDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tree_depth",
			Help:      "Nesting depth of decoded tag trees",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		DecodesByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_by_type_total",
			Help:      "Total number of decodes by root type",
		}, []string{"root_class", "root_type"}),
		ErrorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_by_kind_total",
			Help:      "Total number of decode failures by error kind",
		}, []string{"kind"}),
	}

	m.storageMetrics = &StorageMetrics{
		RecordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Total number of decode records stored in database",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Total number of storage errors",
		}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_query_duration_seconds",
			Help:      "Time spent executing database queries",
			Buckets:   prometheus.DefBuckets,
		}),
		DatabaseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "database_size_bytes",
			Help:      "Current size of the database file",
		}),
		RecordsRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_retained_total",
			Help:      "Total number of decode records currently retained",
		}),
	}

	m.loaderMetrics = &LoaderMetrics{
		FilesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_files_loaded",
			Help:      "Number of capture files currently loaded",
		}),
		FileErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "capture_file_errors",
			Help:      "Number of capture files that failed to decode",
		}),
		ReloadEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_reload_events_total",
			Help:      "Total number of capture hot-reload events",
		}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_scan_duration_seconds",
			Help:      "Time spent scanning capture directories",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.systemMetrics = &SystemMetrics{
		MemoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Current memory usage in bytes",
		}),
		GoroutineCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_total",
			Help:      "Current number of goroutines",
		}),
		GCDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gc_duration_seconds",
			Help:      "Time spent in garbage collection",
			Buckets:   prometheus.DefBuckets,
		}),
		Uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		}),
	}

	collectors := []prometheus.Collector{
		m.decodeMetrics.BlobsReceived,
		m.decodeMetrics.DecodesOK,
		m.decodeMetrics.DecodesFailed,
		m.decodeMetrics.DecodeDuration,
		m.decodeMetrics.PayloadSize,
		m.decodeMetrics.TreeDepth,
		m.decodeMetrics.DecodesByType,
		m.decodeMetrics.ErrorsByKind,

		m.storageMetrics.RecordsStored,
		m.storageMetrics.StorageErrors,
		m.storageMetrics.QueryDuration,
		m.storageMetrics.DatabaseSize,
		m.storageMetrics.RecordsRetained,

		m.loaderMetrics.FilesLoaded,
		m.loaderMetrics.FileErrors,
		m.loaderMetrics.ReloadEvents,
		m.loaderMetrics.ScanDuration,

		m.systemMetrics.MemoryUsage,
		m.systemMetrics.GoroutineCount,
		m.systemMetrics.GCDuration,
		m.systemMetrics.Uptime,
	}

	for _, collector := range collectors {
		if err := m.registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return nil
}

// RecordDecode updates the decode metrics for one processed record
func (m *MetricsManager) RecordDecode(record *types.DecodeRecord) {
	if record == nil {
		return
	}

	m.decodeMetrics.BlobsReceived.Inc()
	m.decodeMetrics.PayloadSize.Observe(float64(record.SizeBytes))
	if record.DecodeDuration > 0 {
		m.decodeMetrics.DecodeDuration.Observe(record.DecodeDuration.Seconds())
	}

	if record.Status == types.StatusOK {
		m.decodeMetrics.DecodesOK.Inc()
		m.decodeMetrics.TreeDepth.Observe(float64(record.MaxDepth))
		m.decodeMetrics.DecodesByType.WithLabelValues(record.RootClass, record.RootType).Inc()
	} else {
		m.decodeMetrics.DecodesFailed.Inc()
		if record.ErrorKind != "" {
			m.decodeMetrics.ErrorsByKind.WithLabelValues(record.ErrorKind).Inc()
		}
	}
}

// RecordDecodeError updates the error-kind counter for one decode failure
func (m *MetricsManager) RecordDecodeError(err error) {
	m.decodeMetrics.ErrorsByKind.WithLabelValues(types.DecodeErrorKind(err)).Inc()
}

// Start starts the metrics server and background monitoring
func (m *MetricsManager) Start() error {
	if !m.config.Enabled {
		m.logger.Info("Metrics collection is disabled")
		return nil
	}

	m.logger.Info("Starting metrics server",
		"listen_address", m.config.ListenAddress,
		"metrics_path", m.config.MetricsPath)

	mux := http.NewServeMux()

	mux.Handle(m.config.MetricsPath, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	mux.HandleFunc(m.config.HealthPath, m.healthHandler)
	mux.HandleFunc(m.config.ReadyPath, m.readyHandler)

	m.server = &http.Server{
		Addr:    m.config.ListenAddress,
		Handler: mux,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server error", "error", err.Error())
		}
	}()

	m.wg.Add(1)
	go m.collectSystemMetrics()

	m.logger.Info("Metrics server started successfully")
	return nil
}

// Stop stops the metrics server and background monitoring
func (m *MetricsManager) Stop() error {
	if !m.config.Enabled {
		return nil
	}

	m.logger.Info("Stopping metrics server")

	m.cancel()

	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.server.Shutdown(ctx); err != nil {
			m.logger.Error("Error shutting down metrics server", "error", err.Error())
		}
	}

	m.wg.Wait()

	m.logger.Info("Metrics server stopped")
	return nil
}

// collectSystemMetrics collects system resource metrics periodically
func (m *MetricsManager) collectSystemMetrics() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.UpdateInterval)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.updateSystemMetrics(startTime)
		}
	}
}

// updateSystemMetrics updates system resource metrics
func (m *MetricsManager) updateSystemMetrics(startTime time.Time) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.systemMetrics.MemoryUsage.Set(float64(memStats.Alloc))
	m.systemMetrics.GoroutineCount.Set(float64(runtime.NumGoroutine()))
	m.systemMetrics.Uptime.Set(time.Since(startTime).Seconds())
	m.systemMetrics.GCDuration.Observe(float64(memStats.PauseTotalNs) / 1e9)
}

// healthHandler handles health check requests
func (m *MetricsManager) healthHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allHealthy := true
	for component, healthy := range m.healthStatus {
		if !healthy {
			allHealthy = false
			m.logger.Debug("Component unhealthy", "component", component)
		}
	}

	if allHealthy {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("UNHEALTHY"))
	}
}

// readyHandler handles readiness check requests
func (m *MetricsManager) readyHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	ready := m.readyStatus
	m.mu.RUnlock()

	if ready {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("READY"))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
	}
}

// SetComponentHealth sets the health status for a component
func (m *MetricsManager) SetComponentHealth(component string, healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.healthStatus[component] = healthy
	m.logger.Debug("Component health updated",
		"component", component,
		"healthy", healthy)
}

// SetReady sets the overall readiness status
func (m *MetricsManager) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readyStatus = ready
	m.logger.Info("Readiness status updated", "ready", ready)
}

// GetDecodeMetrics returns the decode metrics instance
func (m *MetricsManager) GetDecodeMetrics() *DecodeMetrics {
	return m.decodeMetrics
}

// GetStorageMetrics returns the storage metrics instance
func (m *MetricsManager) GetStorageMetrics() *StorageMetrics {
	return m.storageMetrics
}

// GetLoaderMetrics returns the loader metrics instance
func (m *MetricsManager) GetLoaderMetrics() *LoaderMetrics {
	return m.loaderMetrics
}

// GetSystemMetrics returns the system metrics instance
func (m *MetricsManager) GetSystemMetrics() *SystemMetrics {
	return m.systemMetrics
}

// loadMetricsConfig loads metrics configuration from the config provider
func loadMetricsConfig(cfg config.Provider) (*MetricsConfig, error) {
	config := DefaultMetricsConfig()

	if enabled, err := cfg.GetBool("metrics.enabled", config.Enabled); err == nil {
		config.Enabled = enabled
	}

	if listenAddress, err := cfg.GetString("metrics.listen_address", config.ListenAddress); err == nil {
		config.ListenAddress = listenAddress
	}

	if metricsPath, err := cfg.GetString("metrics.metrics_path", config.MetricsPath); err == nil {
		config.MetricsPath = metricsPath
	}

	if healthPath, err := cfg.GetString("metrics.health_path", config.HealthPath); err == nil {
		config.HealthPath = healthPath
	}

	if readyPath, err := cfg.GetString("metrics.ready_path", config.ReadyPath); err == nil {
		config.ReadyPath = readyPath
	}

	if updateInterval, err := cfg.GetDuration("metrics.update_interval", config.UpdateInterval); err == nil {
		config.UpdateInterval = updateInterval
	}

	if namespace, err := cfg.GetString("metrics.namespace", config.Namespace); err == nil {
		config.Namespace = namespace
	}

	return config, nil
}
