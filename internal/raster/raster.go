// Package raster implements the decode/resample/encode engine on top of
// the imaging library. JPEG and PNG can be read and written; WebP can be
// read (decode registration only), output WebP is produced by the
// transcoder package instead.
package raster

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"thumbcache/internal/geometry"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP decode support
)

// Engine is the production raster engine. The zero value is ready to use.
type Engine struct{}

// Decode reads and decodes the image at path, applying EXIF
// auto-orientation so portrait photos crop correctly.
func (Engine) Decode(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// Resample crops src to the given source rectangle and resizes the result
// to exactly dstW x dstH using Lanczos resampling. The imaging library
// works on NRGBA throughout, so the alpha channel survives the copy;
// transparency is only discarded later by opaque encoders such as JPEG.
func (Engine) Resample(src image.Image, crop geometry.Rect, dstW, dstH int) image.Image {
	m := imaging.Crop(src, image.Rect(crop.X, crop.Y, crop.X+crop.W, crop.Y+crop.H))
	return imaging.Resize(m, dstW, dstH, imaging.Lanczos)
}

// Encode writes img to path in the given format. For JPEG the level is a
// quality between 1 and 100; for PNG it is a compression level between 1
// and 9 mapped onto the encoder's speed/size buckets.
func (Engine) Encode(img image.Image, path string, format mediatypes.Format, level int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	switch format {
	case mediatypes.FormatJPEG:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: level})
	case mediatypes.FormatPNG:
		enc := png.Encoder{CompressionLevel: pngLevel(level)}
		err = enc.Encode(f, img)
	default:
		err = fmt.Errorf("cannot encode format %q", format)
	}

	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	logging.Debug("Encoded %s (%s, level %d)", path, format, level)
	return nil
}

// pngLevel buckets a 1-9 compression setting onto the stdlib encoder's
// discrete levels.
func pngLevel(level int) png.CompressionLevel {
	switch {
	case level <= 3:
		return png.BestSpeed
	case level <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
