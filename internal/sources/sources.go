// Package sources discovers thumbnailable images under the media
// directory and watches it for changes so stale cache entries are
// flushed automatically.
package sources

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

// Flusher invalidates cached thumbnail variants of one source file.
type Flusher interface {
	Flush(sourcePath string) error
}

// Scan walks mediaDir recursively and returns the absolute paths of all
// supported source images, sorted. Hidden files and directories are
// skipped. Unreadable subtrees are logged and skipped, not fatal.
func Scan(mediaDir string) ([]string, error) {
	var paths []string

	err := filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Scan: skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != mediaDir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if mediatypes.FromExtension(filepath.Ext(d.Name())).SupportedSource() {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	return paths, nil
}

// Watcher monitors the media directory and flushes cached variants of
// files that change, move, or disappear. New subdirectories are added to
// the watch set as they appear.
type Watcher struct {
	mediaDir string
	flusher  Flusher
	fsw      *fsnotify.Watcher
	done     chan struct{}
}

// NewWatcher creates a Watcher over mediaDir. Call Start to begin
// processing events and Stop to shut it down.
func NewWatcher(mediaDir string, flusher Flusher) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		mediaDir: mediaDir,
		flusher:  flusher,
		fsw:      fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the directory tree with the watcher and launches the
// event loop in a goroutine.
func (w *Watcher) Start() error {
	count, err := w.addTree(w.mediaDir)
	if err != nil {
		return err
	}
	metrics.WatchedDirectories.Set(float64(count))
	logging.Info("Source watcher started, watching %d directories under %s", count, w.mediaDir)

	go w.loop()
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() {
	if err := w.fsw.Close(); err != nil {
		logging.Error("Failed to close source watcher: %v", err)
	}
	<-w.done
}

// addTree adds dir and every non-hidden subdirectory to the watch set.
func (w *Watcher) addTree(dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logging.Warn("Watcher: skipping %s: %v", path, err)
			metrics.WatcherErrors.Inc()
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			logging.Warn("Failed to watch %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		count++
		return nil
	})
	return count, err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Error("Source watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if strings.Contains(event.Name, string(filepath.Separator)+".") {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if count, err := w.addTree(event.Name); err == nil {
				metrics.WatchedDirectories.Add(float64(count))
				logging.Debug("Watching new directory tree: %s", event.Name)
			}
			return
		}
	}

	// a changed, renamed, or removed source invalidates its variants
	if event.Op&(fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if !mediatypes.FromExtension(filepath.Ext(event.Name)).SupportedSource() {
		return
	}
	logging.Debug("Source changed, flushing cached variants: %s", event.Name)
	if err := w.flusher.Flush(event.Name); err != nil {
		logging.Error("Failed to flush cached variants of %s: %v", event.Name, err)
	}
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
