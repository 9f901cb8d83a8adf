package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/scout/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Index configuration
	Index IndexConfig

	// Watcher configuration
	Watcher WatcherConfig

	// Indexer configuration
	Indexer IndexerConfig

	// Search configuration
	Search SearchConfig

	// Maintenance configuration
	Maintenance MaintenanceConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// IndexConfig holds index service configuration
type IndexConfig struct {
	// Root is the directory tree to index
	Root string

	// SnapshotPath overrides the default <root>/.index-cache/index.json
	SnapshotPath string
}

// WatcherConfig holds file watcher configuration
type WatcherConfig struct {
	DebounceWindow    time.Duration
	AllowedExtensions []string
	ExcludedDirs      []string

	// ScanRate bounds the initial scan in entries per second; 0 is unlimited
	ScanRate int
}

// IndexerConfig holds incremental indexer configuration
type IndexerConfig struct {
	DebounceWindow time.Duration
	BatchWindow    time.Duration
	MaxAttempts    int
}

// SearchConfig holds search layer configuration
type SearchConfig struct {
	// DefaultLimit caps result counts when the caller does not pass one
	DefaultLimit int

	// CacheSize is the number of cached search results; 0 disables caching
	CacheSize int
	CacheTTL  time.Duration

	// HistoryEnabled persists queries to a local SQLite database for the
	// suggestion endpoint
	HistoryEnabled bool
	HistoryPath    string
}

// MaintenanceConfig holds background maintenance schedules (cron specs)
type MaintenanceConfig struct {
	// VerifySchedule re-derives index stats and repairs drift
	VerifySchedule string

	// FlushSchedule forces a periodic snapshot write
	FlushSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Index:         loadIndexConfig(),
		Watcher:       loadWatcherConfig(),
		Indexer:       loadIndexerConfig(),
		Search:        loadSearchConfig(),
		Maintenance:   loadMaintenanceConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("SCOUT_HOST", "0.0.0.0"),
		Port:            getEnv("SCOUT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("SCOUT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("SCOUT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("SCOUT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SCOUT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("SCOUT_HEALTH_PORT", "9090"),
	}
}

// loadIndexConfig loads index configuration from environment
func loadIndexConfig() IndexConfig {
	root := getEnv("SCOUT_ROOT", ".")
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return IndexConfig{
		Root:         root,
		SnapshotPath: getEnv("SCOUT_SNAPSHOT_PATH", ""),
	}
}

// loadWatcherConfig loads watcher configuration from environment
func loadWatcherConfig() WatcherConfig {
	return WatcherConfig{
		DebounceWindow:    getEnvDuration("SCOUT_WATCH_DEBOUNCE", 300*time.Millisecond),
		AllowedExtensions: getEnvList("SCOUT_EXTENSIONS", nil),
		ExcludedDirs:      getEnvList("SCOUT_EXCLUDED_DIRS", []string{".git", ".index-cache", "node_modules"}),
		ScanRate:          getEnvInt("SCOUT_SCAN_RATE", 0),
	}
}

// loadIndexerConfig loads indexer configuration from environment
func loadIndexerConfig() IndexerConfig {
	return IndexerConfig{
		DebounceWindow: getEnvDuration("SCOUT_INDEX_DEBOUNCE", 300*time.Millisecond),
		BatchWindow:    getEnvDuration("SCOUT_BATCH_WINDOW", time.Second),
		MaxAttempts:    getEnvInt("SCOUT_MAX_ATTEMPTS", 3),
	}
}

// loadSearchConfig loads search configuration from environment
func loadSearchConfig() SearchConfig {
	return SearchConfig{
		DefaultLimit:   getEnvInt("SCOUT_SEARCH_LIMIT", 100),
		CacheSize:      getEnvInt("SCOUT_SEARCH_CACHE_SIZE", 256),
		CacheTTL:       getEnvDuration("SCOUT_SEARCH_CACHE_TTL", 30*time.Second),
		HistoryEnabled: getEnvBool("SCOUT_HISTORY_ENABLED", true),
		HistoryPath:    getEnv("SCOUT_HISTORY_PATH", ""),
	}
}

// loadMaintenanceConfig loads maintenance schedules from environment
func loadMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		VerifySchedule: getEnv("SCOUT_VERIFY_SCHEDULE", "@every 10m"),
		FlushSchedule:  getEnv("SCOUT_FLUSH_SCHEDULE", "@every 1m"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	cfg := ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("SCOUT_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("SCOUT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("SCOUT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("SCOUT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("SCOUT_OTEL_SERVICE_NAME", "scout"),
		OTelServiceVersion: getEnv("SCOUT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("SCOUT_OTEL_INSECURE", true),
	}

	return cfg
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate index config
	if c.Index.Root == "" {
		return fmt.Errorf("index root is required")
	}
	if info, err := os.Stat(c.Index.Root); err != nil {
		return fmt.Errorf("index root %s is not accessible: %w", c.Index.Root, err)
	} else if !info.IsDir() {
		return fmt.Errorf("index root %s is not a directory", c.Index.Root)
	}

	// Validate indexer config
	if c.Indexer.MaxAttempts < 1 {
		return fmt.Errorf("indexer max attempts must be at least 1")
	}
	if c.Indexer.DebounceWindow <= 0 || c.Indexer.BatchWindow <= 0 {
		return fmt.Errorf("indexer debounce and batch windows must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
