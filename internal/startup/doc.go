// Package startup handles configuration loading, startup logging, and
// build information for the thumbnail cache service.
package startup
