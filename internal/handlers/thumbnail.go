package handlers

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"thumbcache/internal/logging"
	"thumbcache/internal/pipeline"

	"github.com/gorilla/mux"
)

// DefaultThumbnailWidth is used when the request does not specify one.
const DefaultThumbnailWidth = 320

// GetThumbnail generates (or serves from cache) a thumbnail of the
// requested media file. Query parameters: width (default 320), height
// (optional; omitted means derive from aspect ratio).
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	filePath := vars["path"]

	if filePath == "" {
		http.Error(w, "Path is required", http.StatusBadRequest)
		return
	}

	fullPath, ok := h.resolveMediaPath(filePath)
	if !ok {
		logging.Warn("Thumbnail: path outside media dir: %s", filePath)
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	width, err := queryInt(r, "width", DefaultThumbnailWidth)
	if err != nil || width <= 0 {
		http.Error(w, "Invalid width", http.StatusBadRequest)
		return
	}
	height, err := queryInt(r, "height", 0)
	if err != nil || height < 0 {
		http.Error(w, "Invalid height", http.StatusBadRequest)
		return
	}

	resultPath, err := h.pipe.Make(r.Context(), fullPath, width, height)
	if err != nil {
		switch {
		case errors.Is(err, pipeline.ErrSourceNotFound):
			http.Error(w, "File not found", http.StatusNotFound)
		case errors.Is(err, pipeline.ErrUnsupportedType):
			http.Error(w, "Unsupported media type", http.StatusUnsupportedMediaType)
		default:
			logging.Error("Thumbnail generation failed for %s: %v", filePath, err)
			http.Error(w, "Thumbnail generation failed", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeFile(w, r, resultPath)
}

// FlushCache invalidates cached thumbnails. With a path query parameter
// only that source's variants are removed; without one the entire cache
// is emptied.
func (h *Handlers) FlushCache(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("path")

	var source string
	if filePath != "" {
		fullPath, ok := h.resolveMediaPath(filePath)
		if !ok {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}
		source = fullPath
	}

	if err := h.pipe.Flush(source); err != nil {
		logging.Error("Cache flush failed: %v", err)
		http.Error(w, "Flush failed", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "flushed")
}

// resolveMediaPath joins filePath under the media directory and rejects
// anything that escapes it.
func (h *Handlers) resolveMediaPath(filePath string) (string, bool) {
	fullPath := filepath.Join(h.mediaDir, filepath.Clean("/"+filePath))

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", false
	}
	absMediaDir, err := filepath.Abs(h.mediaDir)
	if err != nil {
		return "", false
	}
	if absPath != absMediaDir && !strings.HasPrefix(absPath, absMediaDir+string(filepath.Separator)) {
		return "", false
	}
	return absPath, true
}

func queryInt(r *http.Request, name string, defaultValue int) (int, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}
