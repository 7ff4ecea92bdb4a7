// Package pipeline orchestrates on-demand thumbnail generation: validate
// the source, derive the cache key, consult the store, and only on a
// miss run the expensive decode/crop/resample/encode path, optionally
// followed by a WebP transcode.
//
// Concurrent requests for the same cache key are safe: generation runs
// under a per-key lock and entries are published atomically, so a reader
// never observes a partially written file.
package pipeline
