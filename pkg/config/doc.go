// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	SCOUT_HOST="0.0.0.0"
//	SCOUT_PORT="8080"
//	SCOUT_HEALTH_PORT="9090"
//	SCOUT_READ_TIMEOUT="15s"
//	SCOUT_WRITE_TIMEOUT="15s"
//
// Index settings:
//
//	SCOUT_ROOT="/var/data/docs"
//	SCOUT_SNAPSHOT_PATH=""  # defaults to <root>/.index-cache/index.json
//
// Watcher and indexer settings:
//
//	SCOUT_WATCH_DEBOUNCE="300ms"
//	SCOUT_EXTENSIONS="md,txt"   # empty means all files
//	SCOUT_EXCLUDED_DIRS=".git,.index-cache,node_modules"
//	SCOUT_INDEX_DEBOUNCE="300ms"
//	SCOUT_BATCH_WINDOW="1s"
//	SCOUT_MAX_ATTEMPTS="3"
//
// Search settings:
//
//	SCOUT_SEARCH_LIMIT="100"
//	SCOUT_SEARCH_CACHE_SIZE="256"
//	SCOUT_SEARCH_CACHE_TTL="30s"
//	SCOUT_HISTORY_ENABLED="true"
//	SCOUT_HISTORY_PATH=""  # defaults to <root>/.index-cache/history.db
//
// Observability settings:
//
//	SCOUT_LOG_LEVEL="info"  # debug, info, warn, error
//	SCOUT_METRICS_ENABLED="true"
//	SCOUT_OTEL_ENABLED="true"
//	SCOUT_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Root: %s\n", cfg.Index.Root)
//
// # Related Packages
//
//   - pkg/index: Uses index configuration
//   - pkg/observability: Uses observability configuration
package config
