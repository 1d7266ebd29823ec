package metrics

import (
	"sync"
	"time"

	"scan-indexer/internal/ftppool"
	"scan-indexer/internal/logging"
)

// PoolStatsProvider reports FTP pool state per server.
type PoolStatsProvider interface {
	PoolStats() map[string]ftppool.Stats
}

// DBMetricsUpdater refreshes database gauges.
type DBMetricsUpdater interface {
	UpdateDBMetrics()
}

// Collector periodically refreshes gauges that are read from other
// components rather than updated inline.
type Collector struct {
	pools    PoolStatsProvider
	db       DBMetricsUpdater
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a new metrics collector. Either provider may be nil.
func NewCollector(pools PoolStatsProvider, db DBMetricsUpdater, interval time.Duration) *Collector {
	return &Collector{
		pools:    pools,
		db:       db,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.db != nil {
		c.db.UpdateDBMetrics()
	}
	if c.pools == nil {
		return
	}

	stats := c.pools.PoolStats()
	for server, s := range stats {
		FTPPoolSessions.WithLabelValues(server, "in_use").Set(float64(s.InUse))
		FTPPoolSessions.WithLabelValues(server, "idle").Set(float64(s.Idle))
		FTPPoolEvents.WithLabelValues(server, "dials").Set(float64(s.Dials))
		FTPPoolEvents.WithLabelValues(server, "dial_failures").Set(float64(s.DialFailures))
		FTPPoolEvents.WithLabelValues(server, "exhausted").Set(float64(s.Exhausted))
		FTPPoolEvents.WithLabelValues(server, "stale_dropped").Set(float64(s.StaleDropped))
	}
	logging.Debug("Metrics collected: %d FTP pools", len(stats))
}
