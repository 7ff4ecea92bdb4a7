// Package metrics defines the Prometheus metrics exported by the
// thumbnail cache service and a background collector for cache
// directory statistics.
package metrics
