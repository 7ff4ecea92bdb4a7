package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"thumbcache/internal/cachekey"
	"thumbcache/internal/cachestore"
	"thumbcache/internal/geometry"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/metrics"
)

// Validation errors returned by Make. Wrapped with request detail; detect
// with errors.Is.
var (
	// ErrSourceNotFound means the source image path does not exist.
	ErrSourceNotFound = errors.New("source image not found")
	// ErrUnsupportedType means the source is not a JPEG or PNG raster.
	ErrUnsupportedType = errors.New("unsupported media type")
)

// RasterEngine decodes, resamples, and encodes raster images. The
// production implementation lives in the raster package.
type RasterEngine interface {
	Decode(path string) (image.Image, error)
	Resample(src image.Image, crop geometry.Rect, dstW, dstH int) image.Image
	Encode(img image.Image, path string, format mediatypes.Format, level int) error
}

// Transcoder converts an encoded raster file to WebP.
type Transcoder interface {
	Convert(ctx context.Context, srcPath, dstPath string, quality int) error
}

// Options configures output encoding.
type Options struct {
	JPEGQuality    int  // 1-100, default 75
	PNGCompression int  // 1-9, default 5
	WebPEnabled    bool // transcode generated thumbnails to WebP
	WebPQuality    int  // 1-100, default 80
}

const (
	// DefaultJPEGQuality is the JPEG quality used when none is configured.
	DefaultJPEGQuality = 75
	// DefaultPNGCompression is the PNG compression level used when none is configured.
	DefaultPNGCompression = 5
	// DefaultWebPQuality is the WebP quality used when none is configured.
	DefaultWebPQuality = 80
)

// Pipeline generates center-crop-to-fill thumbnails on demand and serves
// repeats from the cache store.
type Pipeline struct {
	store  *cachestore.Store
	engine RasterEngine
	webp   Transcoder
	opts   Options

	// per-key generation locks; concurrent requests for the same key
	// generate once, everyone else waits for the entry
	keyLocks sync.Map

	mu            sync.Mutex
	lastTranscode error
}

// New constructs a Pipeline. The transcoder may be nil when WebP output
// is disabled. Zero or out-of-range option values fall back to defaults.
func New(store *cachestore.Store, engine RasterEngine, webp Transcoder, opts Options) *Pipeline {
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultJPEGQuality
	}
	if opts.PNGCompression < 1 || opts.PNGCompression > 9 {
		opts.PNGCompression = DefaultPNGCompression
	}
	if opts.WebPQuality < 1 || opts.WebPQuality > 100 {
		opts.WebPQuality = DefaultWebPQuality
	}
	if webp == nil {
		opts.WebPEnabled = false
	}
	return &Pipeline{
		store:  store,
		engine: engine,
		webp:   webp,
		opts:   opts,
	}
}

// Make returns the path of the cached thumbnail for sourcePath at the
// requested width. Pass height <= 0 to derive the height from the source
// aspect ratio (scale only); an explicit height crops the source centered
// to fill the box exactly.
//
// Validation runs before any cache lookup: a missing source yields
// ErrSourceNotFound, a non-JPEG/PNG source ErrUnsupportedType. On a hit
// no decoding happens at all. A failed WebP transcode is not fatal: the
// native-format file is returned and the failure is retained for
// inspection via LastTranscodeError.
func (p *Pipeline) Make(ctx context.Context, sourcePath string, width, height int) (string, error) {
	if width <= 0 {
		return "", fmt.Errorf("width must be positive, got %d", width)
	}

	format, err := p.validate(sourcePath)
	if err != nil {
		return "", err
	}

	key := cachekey.Derive(sourcePath, width, height)
	preferred := mediatypes.FormatUnknown
	if p.opts.WebPEnabled {
		preferred = mediatypes.FormatWebP
	}

	if path, ok := p.store.Lookup(key, preferred, format); ok {
		metrics.CacheHits.Inc()
		logging.Debug("Cache hit: %s -> %s", sourcePath, path)
		return path, nil
	}

	lock := p.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// another request may have generated the entry while we waited
	if path, ok := p.store.Lookup(key, preferred, format); ok {
		metrics.CacheHits.Inc()
		return path, nil
	}
	metrics.CacheMisses.Inc()

	path, err := p.generate(ctx, sourcePath, format, key, width, height)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues(string(format), "error").Inc()
		return "", err
	}
	metrics.GenerationsTotal.WithLabelValues(string(format), "success").Inc()

	if p.opts.WebPEnabled {
		if webpPath, terr := p.transcode(ctx, key, path); terr != nil {
			// non-fatal: keep serving the native format
			p.setLastTranscodeError(terr)
			metrics.TranscodesTotal.WithLabelValues("error").Inc()
			logging.Warn("WebP transcode failed for %s, serving native format: %v", sourcePath, terr)
		} else {
			metrics.TranscodesTotal.WithLabelValues("success").Inc()
			return webpPath, nil
		}
	}
	return path, nil
}

// validate checks the source exists and is one of the supported raster
// kinds, returning its detected format.
func (p *Pipeline) validate(sourcePath string) (mediatypes.Format, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return mediatypes.FormatUnknown, fmt.Errorf("%w: %s", ErrSourceNotFound, sourcePath)
		}
		return mediatypes.FormatUnknown, fmt.Errorf("failed to stat source %s: %w", sourcePath, err)
	}
	if info.IsDir() {
		return mediatypes.FormatUnknown, fmt.Errorf("%w: %s is a directory", ErrSourceNotFound, sourcePath)
	}

	format, err := mediatypes.Sniff(sourcePath)
	if err != nil {
		return mediatypes.FormatUnknown, fmt.Errorf("failed to sniff source %s: %w", sourcePath, err)
	}
	if !format.SupportedSource() {
		return mediatypes.FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedType, sourcePath)
	}
	return format, nil
}

// generate runs the miss path: decode, crop geometry, resample, persist.
func (p *Pipeline) generate(ctx context.Context, sourcePath string, format mediatypes.Format, key string, width, height int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()

	src, err := p.engine.Decode(sourcePath)
	if err != nil {
		return "", err
	}

	bounds := src.Bounds()
	outH, crop := geometry.Fill(bounds.Dx(), bounds.Dy(), width, height)
	thumb := p.engine.Resample(src, crop, width, outH)

	level := p.opts.JPEGQuality
	if format == mediatypes.FormatPNG {
		level = p.opts.PNGCompression
	}

	path, err := p.store.Publish(key, format, func(tmp string) error {
		return p.engine.Encode(thumb, tmp, format, level)
	})
	if err != nil {
		return "", err
	}

	metrics.GenerationDuration.WithLabelValues(string(format)).Observe(time.Since(start).Seconds())
	logging.Debug("Generated %s (%dx%d, crop %+v) in %s", path, width, outH, crop, time.Since(start))
	return path, nil
}

// transcode publishes a WebP variant of the already-persisted native file
// under the same key. The native file is kept; Lookup prefers the WebP
// entry on later requests.
func (p *Pipeline) transcode(ctx context.Context, key, nativePath string) (string, error) {
	return p.store.Publish(key, mediatypes.FormatWebP, func(tmp string) error {
		return p.webp.Convert(ctx, nativePath, tmp, p.opts.WebPQuality)
	})
}

// ToWebP converts the encoded raster file at path to a sibling .webp
// file. When deleteOriginal is true the source file is removed after a
// successful conversion. Returns the path of the WebP file.
func (p *Pipeline) ToWebP(ctx context.Context, path string, deleteOriginal bool) (string, error) {
	if p.webp == nil {
		return "", errors.New("no transcoder configured")
	}
	dst := strings.TrimSuffix(path, filepath.Ext(path)) + ".webp"
	if err := p.webp.Convert(ctx, path, dst, p.opts.WebPQuality); err != nil {
		p.setLastTranscodeError(err)
		metrics.TranscodesTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.TranscodesTotal.WithLabelValues("success").Inc()
	if deleteOriginal && dst != path {
		if err := os.Remove(path); err != nil {
			logging.Warn("Failed to remove original after transcode: %v", err)
		}
	}
	return dst, nil
}

// Flush invalidates cache entries. With sourcePath empty the whole cache
// is emptied; otherwise every cached size variant of that one source is
// removed and other sources are left untouched.
func (p *Pipeline) Flush(sourcePath string) error {
	if sourcePath == "" {
		metrics.FlushesTotal.WithLabelValues("all").Inc()
		logging.Info("Flushing entire thumbnail cache")
		return p.store.Flush("")
	}
	metrics.FlushesTotal.WithLabelValues("source").Inc()
	logging.Info("Flushing cached variants of %s", sourcePath)
	return p.store.Flush(cachekey.HashFor(sourcePath))
}

// LastTranscodeError returns the most recent WebP transcode failure, or
// nil. Transcode failures are swallowed by Make; this is the diagnostic
// channel for them.
func (p *Pipeline) LastTranscodeError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTranscode
}

func (p *Pipeline) setLastTranscodeError(err error) {
	p.mu.Lock()
	p.lastTranscode = err
	p.mu.Unlock()
}

func (p *Pipeline) keyLock(key string) *sync.Mutex {
	lock, _ := p.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
