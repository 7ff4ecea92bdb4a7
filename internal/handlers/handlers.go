package handlers

import (
	"context"

	"thumbcache/internal/pipeline"
	"thumbcache/internal/startup"
)

// Thumbnailer is the pipeline surface the HTTP layer needs.
type Thumbnailer interface {
	Make(ctx context.Context, sourcePath string, width, height int) (string, error)
	Flush(sourcePath string) error
	LastTranscodeError() error
}

var _ Thumbnailer = (*pipeline.Pipeline)(nil)

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	pipe     Thumbnailer
	mediaDir string
}

// New constructs the handler set.
func New(pipe Thumbnailer, config *startup.Config) *Handlers {
	return &Handlers{
		pipe:     pipe,
		mediaDir: config.MediaDir,
	}
}
