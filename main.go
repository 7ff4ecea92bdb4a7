package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"thumbcache/internal/cachestore"
	"thumbcache/internal/handlers"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
	"thumbcache/internal/middleware"
	"thumbcache/internal/pipeline"
	"thumbcache/internal/raster"
	"thumbcache/internal/sources"
	"thumbcache/internal/startup"
	"thumbcache/internal/transcoder"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	store, err := cachestore.New(config.CacheDir)
	if err != nil {
		startup.LogFatal("Cache store error: %v", err)
	}

	var webp pipeline.Transcoder
	if config.WebPEnabled {
		if err := transcoder.InitVips(); err != nil {
			startup.LogFatal("libvips initialization failed: %v", err)
		}
		defer transcoder.ShutdownVips()
		webp = transcoder.New()
	}

	pipe := pipeline.New(store, raster.Engine{}, webp, pipeline.Options{
		JPEGQuality:    config.JPEGQuality,
		PNGCompression: config.PNGCompression,
		WebPEnabled:    config.WebPEnabled,
		WebPQuality:    config.WebPQuality,
	})

	var watcher *sources.Watcher
	if config.WatchSources {
		watcher, err = sources.NewWatcher(config.MediaDir, pipe)
		if err != nil {
			logging.Error("Source watcher unavailable: %v", err)
		} else if err := watcher.Start(); err != nil {
			logging.Error("Source watcher failed to start: %v", err)
			watcher = nil
		}
	}

	if config.WarmOnStart {
		go warmCache(pipe, config)
	}

	h := handlers.New(pipe, config)
	router := setupRouter(h)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggedHandler := middleware.Logger(loggingConfig)(router)
	handler := middleware.Metrics(middleware.DefaultMetricsConfig())(loggedHandler)

	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	var collector *metrics.Collector
	if config.MetricsEnabled {
		metrics.InitializeMetrics()
		collector = metrics.NewCollector(config.CacheDir, time.Minute)
		collector.Start()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:    ":" + config.MetricsPort,
			Handler: metricsMux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, collector, watcher)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/flush", h.FlushCache).Methods("POST")

	return r
}

func warmCache(pipe *pipeline.Pipeline, config *startup.Config) {
	paths, err := sources.Scan(config.MediaDir)
	if err != nil {
		logging.Error("Cache warm-up scan failed: %v", err)
		return
	}
	if _, err := pipe.Warm(context.Background(), paths, config.WarmWidths); err != nil {
		logging.Warn("Cache warm-up interrupted: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, collector *metrics.Collector, watcher *sources.Watcher) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	if collector != nil {
		collector.Stop()
	}
	if watcher != nil {
		watcher.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	}
	startup.LogShutdownComplete()
}
