// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// Configuration is read from environment variables via [LoadConfig]. A .env
// file (ENV_FILE, default ./.env) is loaded first; variables already set in
// the environment win. The following variables are supported:
//
//   - OUT_DIR: Directory holding the JSON indexes and logs (default: ./out)
//   - SERVER_FILE: Path to servers.txt (default: servers.txt)
//   - PORT: HTTP API port (default: 8081)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable the metrics server (default: true)
//   - UPDATE_INTERVAL: Periodic incremental update as Go duration, 0 disables (default: 1h)
//   - PROGRESS_EVERY: Traversal progress log interval in directories (default: 1000)
//   - HISTORY_DB: SQLite run history path, "off" disables (default: OUT_DIR/history.db)
//   - SCAN_WORKERS, FILM_WORKERS: Traversal worker counts (see package workers)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: false)
//   - URL_PREFIX: Reverse-proxy prefix stripped from requests (default: /scanner)
//   - CORS_ORIGINS: Comma-separated allowed origins, empty allows all
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo]:
//   - Version: Application version
//   - Commit: Git commit hash
//   - BuildTime: Build timestamp
//   - GoVersion: Go compiler version
//
// # Example Usage
//
//	cfg, err := startup.LoadConfig()
//	if err != nil {
//	    startup.LogFatal("Configuration error: %v", err)
//	}
//	startup.LogIndexerInit(cfg.OutDir, cfg.UpdateInterval)
//	...
//	startup.LogShutdownInitiated("SIGTERM")
//	startup.LogShutdownComplete()
package startup
