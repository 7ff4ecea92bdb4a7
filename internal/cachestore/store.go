package cachestore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"thumbcache/internal/cachekey"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
)

// Store maps cache keys to files under a single cache directory. It is
// the exclusive owner of that directory's contents: the pipeline writes
// entries only through Publish and removes them only through Flush.
//
// Entries are published by writing to a temp file and renaming it into
// place, so a concurrent Lookup never observes a partially written file.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// New creates a Store rooted at dir, creating the directory (owner rwx,
// group/other rx) if it does not exist. Construction fails if the
// directory cannot be created.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the cache root directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the cache file path for a key and format.
func (s *Store) PathFor(key string, format mediatypes.Format) string {
	return filepath.Join(s.dir, key+"."+format.Ext())
}

// Lookup reports whether a cache entry exists for key, checking the
// preferred format first (skipped when FormatUnknown) and falling back to
// the native format. Existence means a regular file at the expected path.
func (s *Store) Lookup(key string, preferred, fallback mediatypes.Format) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if preferred != mediatypes.FormatUnknown {
		if path := s.PathFor(key, preferred); isRegular(path) {
			return path, true
		}
	}
	if path := s.PathFor(key, fallback); isRegular(path) {
		return path, true
	}
	return "", false
}

// Publish creates the entry for (key, format) by invoking write with a
// temporary path inside the cache directory and renaming the result into
// place on success. The temp file is cleaned up if write or the rename
// fails.
func (s *Store) Publish(key string, format mediatypes.Format, write func(path string) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PathFor(key, format)
	tmp := path + ".tmp"

	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to publish cache entry %s: %w", key, err)
	}
	return path, nil
}

// Flush deletes cache entries. With matchHash empty every entry goes.
// Otherwise only entries whose key carries matchHash as its trailing
// hash component are removed, which invalidates every cached size
// variant of one source while leaving other sources untouched.
// Individual deletions are best effort; files that are already gone are
// skipped silently.
func (s *Store) Flush(matchHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if matchHash != "" {
			key := strings.TrimSuffix(name, filepath.Ext(name))
			h, ok := cachekey.HashComponent(key)
			if !ok || h != matchHash {
				continue
			}
		}
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warn("Failed to remove cache entry %s: %v", path, err)
		}
	}
	return nil
}

func isRegular(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
