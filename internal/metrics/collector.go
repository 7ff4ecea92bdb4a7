package metrics

import (
	"os"
	"path/filepath"
	"time"

	"thumbcache/internal/logging"
)

// Collector periodically walks the cache directory and updates the cache
// size gauges. Scanning is kept out of the request path on purpose.
type Collector struct {
	cacheDir string
	interval time.Duration
	stopChan chan struct{}
}

// NewCollector creates a collector for the given cache directory.
func NewCollector(cacheDir string, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Collector{
		cacheDir: cacheDir,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the collection loop.
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the collection loop.
func (c *Collector) Stop() {
	close(c.stopChan)
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
	entries, err := os.ReadDir(c.cacheDir)
	if err != nil {
		logging.Warn("Metrics collector could not read cache dir: %v", err)
		return
	}

	var count int
	var bytes int64
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		count++
		bytes += info.Size()
	}

	CacheEntryCount.Set(float64(count))
	CacheSizeBytes.Set(float64(bytes))
	logging.Debug("Metrics collected: cache entries=%d, bytes=%d", count, bytes)
}
