package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/logging"
	"scan-indexer/internal/workers"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// historyDisabled turns off run history when set as HISTORY_DB.
const historyDisabled = "off"

// Config holds all application configuration
type Config struct {
	OutDir          string
	ServerFile      string
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	UpdateInterval  time.Duration
	ProgressEvery   int
	LogHealthChecks bool
	URLPrefix       string
	CORSOrigins     []string

	// Derived paths
	LogDir    string
	HistoryDB string // empty when run history is disabled
}

// HistoryEnabled reports whether runs are recorded.
func (c *Config) HistoryEnabled() bool {
	return c.HistoryDB != ""
}

// LoadEnvFile loads a .env file into the environment without overriding
// variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	logging.Info("  Loaded environment from %s", path)
	return nil
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	printBanner()
	logSystemInfo()

	if err := LoadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}
	// LOG_LEVEL may come from the .env file.
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		logging.SetLevel(logging.ParseLevel(v))
	}

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	outDir := getEnv("OUT_DIR", "./out")
	serverFile := getEnv("SERVER_FILE", "servers.txt")
	port := getEnv("PORT", "8081")
	metricsPort := getEnv("METRICS_PORT", "9090")
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)
	updateIntervalStr := getEnv("UPDATE_INTERVAL", "1h")
	progressEvery := getEnvInt("PROGRESS_EVERY", 1000)
	historyDB := getEnv("HISTORY_DB", "")
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", false)
	urlPrefix := getEnv("URL_PREFIX", "/scanner")
	corsOrigins := getEnvList("CORS_ORIGINS")

	logging.Info("  OUT_DIR:             %s", outDir)
	logging.Info("  SERVER_FILE:         %s", serverFile)
	logging.Info("  PORT:                %s", port)
	logging.Info("  METRICS_PORT:        %s", metricsPort)
	logging.Info("  METRICS_ENABLED:     %v", metricsEnabled)
	logging.Info("  UPDATE_INTERVAL:     %s", updateIntervalStr)
	logging.Info("  PROGRESS_EVERY:      %d", progressEvery)
	logging.Info("  SCAN_WORKERS:        %d", workers.Scan())
	logging.Info("  FILM_WORKERS:        %d", workers.Film())
	logging.Info("  LOG_HEALTH_CHECKS:   %v", logHealthChecks)
	logging.Info("  URL_PREFIX:          %s", urlPrefix)
	logging.Info("  CORS_ORIGINS:        %s", strings.Join(corsOrigins, ","))
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	updateInterval, err := parseInterval(updateIntervalStr)
	if err != nil {
		logging.Warn("  Invalid UPDATE_INTERVAL, using default: 1h")
		updateInterval = time.Hour
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	outDir, err = filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory path: %w", err)
	}
	logging.Info("  Output directory (absolute): %s", outDir)

	if err := ensureDirectory(outDir, "output"); err != nil {
		return nil, fmt.Errorf("output directory error: %w", err)
	}
	logging.Debug("  Testing output directory write access...")
	if err := testWriteAccess(outDir); err != nil {
		return nil, fmt.Errorf("output directory is not writable (required for indexes): %w", err)
	}
	logging.Info("  [OK] Output directory is writable")

	switch strings.ToLower(historyDB) {
	case historyDisabled:
		historyDB = ""
	case "":
		historyDB = filepath.Join(outDir, "history.db")
	}

	cfg := &Config{
		OutDir:          outDir,
		ServerFile:      serverFile,
		Port:            port,
		MetricsPort:     metricsPort,
		MetricsEnabled:  metricsEnabled,
		UpdateInterval:  updateInterval,
		ProgressEvery:   progressEvery,
		LogHealthChecks: logHealthChecks,
		URLPrefix:       strings.TrimRight(urlPrefix, "/"),
		CORSOrigins:     corsOrigins,
		LogDir:          filepath.Join(outDir, "logs"),
		HistoryDB:       historyDB,
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Run history:      %s", enabledString(cfg.HistoryEnabled()))
	logging.Info("    Periodic update:  %s", enabledString(cfg.UpdateInterval > 0))
	logging.Info("    Metrics:          %s", enabledString(cfg.MetricsEnabled))

	return cfg, nil
}

// parseInterval accepts a Go duration. "0" and "off" disable the interval.
func parseInterval(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "off", "never":
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative interval %s", s)
	}
	return d, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogServerList logs the parsed server list.
func LogServerList(path string, servers config.ServerList) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER LIST")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Loaded %d servers from %s", len(servers), path)
	for _, s := range servers {
		logging.Info("    %-12s %-5s %-8s %s", s.Name, s.Role, s.Source, s.Root)
		logging.Debug("      address=%s maxDepth=%d poolSize=%d", s.Addr(), s.MaxDepth, s.PoolSize)
	}
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(path string, duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("RUN HISTORY")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Database %s initialized in %v", path, duration)
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(outDir string, interval time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("INDEXER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Index directory: %s", outDir)
	if interval > 0 {
		logging.Info("  Update interval: %v", interval)
	} else {
		logging.Info("  Update interval: DISABLED")
	}
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, urlPrefix string, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}

			for _, route := range groups[group] {
				methodPadded := fmt.Sprintf("%-6s", route.Method)
				logging.Debug("    %s %s", methodPadded, route.Path)
			}
			logging.Debug("")
		}
	}

	if urlPrefix != "" {
		logging.Info("  Routes also served under %s", urlPrefix)
	}
	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 {
		return ""
	}

	first := parts[0]

	// Versioned API routes group by resource.
	if first == "v1" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "v1/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	URLPrefix       string
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://0.0.0.0:%s/v1", config.Port)
	if config.URLPrefix != "" {
		logging.Info("    Proxied API:   http://0.0.0.0:%s%s/v1", config.Port, config.URLPrefix)
	}
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Local access:")
	logging.Info("    API:           http://localhost:%s/v1", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
   ____                    ____          __
  / __/______ ____  ___   /  _/__  ___  / /____ ______ ____
 _\ \/ __/ _ '/ _ \/ _ \ _/ // _ \/ _ \/ -_) \ // -_) __/
/___/\__/\_,_/_//_/_//_//___/_//_/\_,_/\__/_\_\ \__/_/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
