// Package transcoder converts already-encoded raster files to WebP using
// libvips. It is a collaborator of the thumbnail pipeline: the pipeline
// decides when to transcode and where the output lives, the transcoder
// only performs the conversion.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"

	"thumbcache/internal/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

// ErrConversionFailed is wrapped by every conversion failure so callers
// can detect transcode errors with errors.Is.
var ErrConversionFailed = errors.New("webp conversion failed")

// WebP converts encoded raster files to lossy WebP.
type WebP struct{}

// New returns a WebP transcoder. InitVips must have been called before
// the first conversion.
func New() *WebP {
	return &WebP{}
}

// Convert reads the encoded image at srcPath and writes a lossy WebP
// encoding of it to dstPath at the given quality (1-100). The source
// file is left untouched.
func (t *WebP) Convert(ctx context.Context, srcPath, dstPath string, quality int) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}
	if !IsVipsAvailable() {
		return fmt.Errorf("%w: libvips not available", ErrConversionFailed)
	}

	ref, err := vips.LoadImageFromFile(srcPath, vips.NewImportParams())
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrConversionFailed, srcPath, err)
	}
	defer ref.Close()

	params := vips.NewWebpExportParams()
	params.Quality = quality
	params.Lossless = false

	buf, _, err := ref.ExportWebp(params)
	if err != nil {
		return fmt.Errorf("%w: export %s: %v", ErrConversionFailed, srcPath, err)
	}

	if err := os.WriteFile(dstPath, buf, 0644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrConversionFailed, dstPath, err)
	}

	logging.Debug("Transcoded %s -> %s (quality %d, %d bytes)", srcPath, dstPath, quality, len(buf))
	return nil
}
