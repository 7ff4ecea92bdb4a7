package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"thumbcache/internal/logging"

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

// Config holds all application configuration
type Config struct {
	MediaDir    string
	CacheDir    string
	Port        string
	MetricsPort string

	JPEGQuality    int
	PNGCompression int
	WebPEnabled    bool
	WebPQuality    int

	MetricsEnabled bool

	WarmOnStart  bool
	WarmWidths   []int
	WatchSources bool
}

// LoadConfig loads and validates configuration from the environment. A
// .env file in the working directory is honored when present.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logging.Debug("Loaded environment from .env")
	}

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	config := &Config{
		MediaDir:       getEnv("MEDIA_DIR", "/media"),
		CacheDir:       getEnv("CACHE_DIR", "/cache"),
		Port:           getEnv("PORT", "8080"),
		MetricsPort:    getEnv("METRICS_PORT", "9090"),
		JPEGQuality:    getEnvInt("JPEG_QUALITY", 75),
		PNGCompression: getEnvInt("PNG_COMPRESSION", 5),
		WebPEnabled:    getEnvBool("WEBP_ENABLED", false),
		WebPQuality:    getEnvInt("WEBP_QUALITY", 80),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		WarmOnStart:    getEnvBool("WARM_ENABLED", false),
		WarmWidths:     getEnvIntList("WARM_WIDTHS", []int{320}),
		WatchSources:   getEnvBool("WATCH_SOURCES", true),
	}

	logging.Info("  MEDIA_DIR:        %s", config.MediaDir)
	logging.Info("  CACHE_DIR:        %s", config.CacheDir)
	logging.Info("  PORT:             %s", config.Port)
	logging.Info("  METRICS_PORT:     %s", config.MetricsPort)
	logging.Info("  METRICS_ENABLED:  %v", config.MetricsEnabled)
	logging.Info("  JPEG_QUALITY:     %d", config.JPEGQuality)
	logging.Info("  PNG_COMPRESSION:  %d", config.PNGCompression)
	logging.Info("  WEBP_ENABLED:     %v", config.WebPEnabled)
	logging.Info("  WEBP_QUALITY:     %d", config.WebPQuality)
	logging.Info("  WARM_ENABLED:     %v", config.WarmOnStart)
	logging.Info("  WARM_WIDTHS:      %v", config.WarmWidths)
	logging.Info("  WATCH_SOURCES:    %v", config.WatchSources)
	logging.Info("  LOG_LEVEL:        %s", logging.GetLevel())

	if config.JPEGQuality < 1 || config.JPEGQuality > 100 {
		logging.Warn("  Invalid JPEG_QUALITY %d, using default: 75", config.JPEGQuality)
		config.JPEGQuality = 75
	}
	if config.PNGCompression < 1 || config.PNGCompression > 9 {
		logging.Warn("  Invalid PNG_COMPRESSION %d, using default: 5", config.PNGCompression)
		config.PNGCompression = 5
	}
	if config.WebPQuality < 1 || config.WebPQuality > 100 {
		logging.Warn("  Invalid WEBP_QUALITY %d, using default: 80", config.WebPQuality)
		config.WebPQuality = 80
	}
	for _, w := range config.WarmWidths {
		if w < 1 {
			logging.Warn("  Invalid WARM_WIDTHS %v, using default: [320]", config.WarmWidths)
			config.WarmWidths = []int{320}
			break
		}
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	var err error
	config.MediaDir, err = filepath.Abs(config.MediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media directory path: %w", err)
	}
	logging.Info("  Media directory (absolute): %s", config.MediaDir)

	config.CacheDir, err = filepath.Abs(config.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache directory path: %w", err)
	}
	logging.Info("  Cache directory (absolute): %s", config.CacheDir)

	if info, err := os.Stat(config.MediaDir); err != nil || !info.IsDir() {
		logging.Warn("  Media directory is not accessible: %v", err)
	}

	return config, nil
}

// ServerConfig holds the values for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:  %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application: http://localhost:%s", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:     http://localhost:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("    Metrics:     DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
   ________                    __    ______           __
  /_  __/ /_  __  ______ ___  / /_  / ____/___ ______/ /_  ___
   / / / __ \/ / / / __ '__ \/ __ \/ /   / __ '/ ___/ __ \/ _ \
  / / / / / / /_/ / / / / / / /_/ / /___/ /_/ / /__/ / / /  __/
 /_/ /_/ /_/\__,_/_/ /_/ /_/_.___/\____/\__,_/\___/_/ /_/\___/

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
	logging.Info("SYSTEM")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version: %s", GoVersion)
	logging.Info("  OS/Arch:    %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs:       %d", runtime.NumCPU())
	logging.Info("")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		logging.Warn("  Invalid value for %s: %q, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var list []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		intValue, err := strconv.Atoi(part)
		if err != nil {
			logging.Warn("  Invalid value for %s: %q, using default %v", key, value, defaultValue)
			return defaultValue
		}
		list = append(list, intValue)
	}
	if len(list) == 0 {
		return defaultValue
	}
	return list
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		logging.Warn("  Invalid value for %s: %q, using default %v", key, value, defaultValue)
	}
	return defaultValue
}
