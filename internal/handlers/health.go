package handlers

import (
	"net/http"
	"runtime"

	"thumbcache/internal/startup"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`

	LastTranscodeError string `json:"lastTranscodeError,omitempty"`
}

// HealthCheck returns the health status of the service. The most recent
// swallowed WebP transcode failure is surfaced here for diagnostics.
func (h *Handlers) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:       "healthy",
		Version:      startup.Version,
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}
	if err := h.pipe.LastTranscodeError(); err != nil {
		response.LastTranscodeError = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, response)
}

// GetVersion returns build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, startup.GetBuildInfo())
}
