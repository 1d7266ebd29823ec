package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"scan-indexer/internal/config"
	"scan-indexer/internal/database"
	"scan-indexer/internal/handlers"
	"scan-indexer/internal/index"
	"scan-indexer/internal/indexer"
	"scan-indexer/internal/logging"
	"scan-indexer/internal/metrics"
	"scan-indexer/internal/middleware"
	"scan-indexer/internal/search"
	"scan-indexer/internal/source"
	"scan-indexer/internal/startup"
)

const (
	shutdownTimeout  = 30 * time.Second
	collectorPeriod  = time.Minute
	apiReadTimeout   = 15 * time.Second
	apiIdleTimeout   = 60 * time.Second
	metricsTimeout   = 10 * time.Second
	metricsIdleLimit = 30 * time.Second
)

func main() {
	startTime := time.Now()

	cfg, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	logFile, err := logging.EnableFile(cfg.LogDir, "scanner")
	if err != nil {
		logging.Warn("File logging disabled: %v", err)
	} else {
		defer logFile.Close()
	}

	servers, err := config.LoadServerList(cfg.ServerFile)
	if err != nil {
		startup.LogFatal("Server list error: %v", err)
	}
	startup.LogServerList(cfg.ServerFile, servers)

	source.SetObserver(metrics.NewSourceObserver())
	sources := source.NewRegistry(nil)
	defer sources.Close()

	var (
		db      *database.Database
		runs    handlers.RunHistory
		opts    = indexer.Options{ProgressEvery: cfg.ProgressEvery}
		dbStats metrics.DBMetricsUpdater
	)
	if cfg.HistoryEnabled() {
		dbStart := time.Now()
		db, err = database.New(context.Background(), cfg.HistoryDB)
		if err != nil {
			startup.LogFatal("Failed to initialize run history: %v", err)
		}
		defer db.Close()
		startup.LogDatabaseInit(cfg.HistoryDB, time.Since(dbStart))
		runs, opts.Recorder, dbStats = db, db, db
	}

	startup.LogIndexerInit(cfg.OutDir, cfg.UpdateInterval)
	store := index.NewStore(cfg.OutDir)
	mgr := indexer.New(servers, store, sources, opts)
	mgr.StartPeriodicUpdate(cfg.UpdateInterval)
	startup.LogIndexerStarted()

	engine := search.New(servers, store, sources, search.Options{})
	h := handlers.New(mgr, engine, runs)

	router := h.Router()
	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	startup.LogHTTPRoutes(router, cfg.URLPrefix, cfg.LogHealthChecks)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     apiHandler(router, cfg),
		ReadTimeout: apiReadTimeout,
		// Synchronous builds and direct searches can run for minutes.
		WriteTimeout: 0,
		IdleTimeout:  apiIdleTimeout,
	}

	var (
		metricsSrv *http.Server
		collector  *metrics.Collector
	)
	if cfg.MetricsEnabled {
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
		metrics.InitializeMetrics(serverLabels(servers))

		collector = metrics.NewCollector(sources, dbStats, collectorPeriod)
		collector.Start()

		metricsSrv = newMetricsServer(cfg.MetricsPort, h.MetricsHandler())
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handleShutdown(srv, metricsSrv, collector, mgr)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Port:            cfg.Port,
		MetricsPort:     cfg.MetricsPort,
		MetricsEnabled:  cfg.MetricsEnabled,
		URLPrefix:       cfg.URLPrefix,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
	// Builds publish before the stores and sources below are closed.
	<-done
}

// apiHandler wraps the router with the outer middleware. The prefix is
// stripped first so logging and CORS see the route path.
func apiHandler(router http.Handler, cfg *startup.Config) http.Handler {
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = cfg.LogHealthChecks

	var handler http.Handler = router
	handler = middleware.Compression(middleware.DefaultCompressionConfig())(handler)
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	handler = middleware.Logger(loggingConfig)(handler)
	return middleware.StripPrefix(cfg.URLPrefix)(handler)
}

func newMetricsServer(port string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  metricsTimeout,
		WriteTimeout: metricsTimeout,
		IdleTimeout:  metricsIdleLimit,
	}
}

func serverLabels(servers config.ServerList) []metrics.ServerLabel {
	labels := make([]metrics.ServerLabel, len(servers))
	for i, s := range servers {
		labels[i] = metrics.ServerLabel{Name: s.Name, Role: string(s.Role), Kind: string(s.Source)}
	}
	return labels
}

func handleShutdown(srv, metricsSrv *http.Server, collector *metrics.Collector, mgr *indexer.Manager) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping indexer")
	mgr.Stop()
	startup.LogShutdownStepComplete("Indexer stopped")

	if collector != nil {
		collector.Stop()
	}
	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
