// Package handlers implements the HTTP API of the thumbnail cache
// service: thumbnail generation, cache invalidation, health, and
// version endpoints.
package handlers
