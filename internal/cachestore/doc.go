// Package cachestore persists generated thumbnails on disk, keyed by
// deterministic cache keys. There is no index or manifest: the presence
// of a file at the expected path is the sole existence check.
package cachestore
