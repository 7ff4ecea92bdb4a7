package pipeline

import (
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"thumbcache/internal/cachestore"
	"thumbcache/internal/geometry"
	"thumbcache/internal/mediatypes"
)

// stubEngine fakes the raster engine and counts the expensive calls.
// A nonzero delay stretches Decode to widen race windows.
type stubEngine struct {
	decodes atomic.Int64
	encodes atomic.Int64
	delay   time.Duration
}

func (s *stubEngine) Decode(path string) (image.Image, error) {
	s.decodes.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return image.NewNRGBA(image.Rect(0, 0, 40, 30)), nil
}

func (s *stubEngine) Resample(src image.Image, crop geometry.Rect, dstW, dstH int) image.Image {
	return image.NewNRGBA(image.Rect(0, 0, dstW, dstH))
}

func (s *stubEngine) Encode(img image.Image, path string, format mediatypes.Format, level int) error {
	s.encodes.Add(1)
	return os.WriteFile(path, []byte("encoded-"+string(format)), 0644)
}

// stubTranscoder fakes WebP conversion, optionally failing.
type stubTranscoder struct {
	fail  bool
	calls atomic.Int64
}

func (s *stubTranscoder) Convert(ctx context.Context, srcPath, dstPath string, quality int) error {
	s.calls.Add(1)
	if s.fail {
		return errors.New("vips unavailable")
	}
	return os.WriteFile(dstPath, []byte("webp-bytes"), 0644)
}

func newTestStore(t *testing.T) *cachestore.Store {
	t.Helper()
	store, err := cachestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("cachestore.New: %v", err)
	}
	return store
}

func writeSourceJPEG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("jpeg.Encode: %v", err)
	}
	return path
}

func writeSourcePNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return path
}

func TestMakeGeneratesOnceAndCaches(t *testing.T) {
	src := writeSourceJPEG(t, t.TempDir(), "photo.jpg")
	engine := &stubEngine{}
	p := New(newTestStore(t), engine, nil, Options{})

	first, err := p.Make(context.Background(), src, 200, 0)
	if err != nil {
		t.Fatalf("Make() error: %v", err)
	}
	if !strings.HasSuffix(first, ".jpg") {
		t.Errorf("Thumbnail path = %q, want .jpg suffix", first)
	}
	if _, err := os.Stat(first); err != nil {
		t.Fatalf("Thumbnail file missing: %v", err)
	}

	second, err := p.Make(context.Background(), src, 200, 0)
	if err != nil {
		t.Fatalf("Make() error on repeat: %v", err)
	}
	if second != first {
		t.Errorf("Repeat Make() = %q, want cached %q", second, first)
	}
	if n := engine.decodes.Load(); n != 1 {
		t.Errorf("Decode called %d times across two Makes, want 1", n)
	}
	if n := engine.encodes.Load(); n != 1 {
		t.Errorf("Encode called %d times across two Makes, want 1", n)
	}
}

func TestMakeConcurrentSameKey(t *testing.T) {
	src := writeSourceJPEG(t, t.TempDir(), "photo.jpg")
	engine := &stubEngine{delay: 100 * time.Millisecond}
	p := New(newTestStore(t), engine, nil, Options{})

	const requests = 8
	paths := make([]string, requests)
	errs := make([]error, requests)

	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = p.Make(context.Background(), src, 200, 0)
		}(i)
	}
	wg.Wait()

	for i := 0; i < requests; i++ {
		if errs[i] != nil {
			t.Fatalf("Make() [%d] error: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Errorf("Make() [%d] = %q, want same path as [0] %q", i, paths[i], paths[0])
		}
	}
	if _, err := os.Stat(paths[0]); err != nil {
		t.Fatalf("Thumbnail file missing: %v", err)
	}

	// all but one request must wait on the per-key lock and then hit the
	// entry on re-lookup, so the expensive path runs exactly once
	if n := engine.decodes.Load(); n != 1 {
		t.Errorf("Decode called %d times across %d concurrent Makes, want 1", n, requests)
	}
	if n := engine.encodes.Load(); n != 1 {
		t.Errorf("Encode called %d times across %d concurrent Makes, want 1", n, requests)
	}
}

func TestMakeDistinctWidthsDistinctEntries(t *testing.T) {
	src := writeSourceJPEG(t, t.TempDir(), "photo.jpg")
	engine := &stubEngine{}
	p := New(newTestStore(t), engine, nil, Options{})

	a, err := p.Make(context.Background(), src, 200, 0)
	if err != nil {
		t.Fatalf("Make(200) error: %v", err)
	}
	b, err := p.Make(context.Background(), src, 400, 0)
	if err != nil {
		t.Fatalf("Make(400) error: %v", err)
	}
	if a == b {
		t.Errorf("Different widths mapped to the same entry %q", a)
	}
	if n := engine.decodes.Load(); n != 2 {
		t.Errorf("Decode called %d times for two sizes, want 2", n)
	}
}

func TestMakeInvalidWidth(t *testing.T) {
	p := New(newTestStore(t), &stubEngine{}, nil, Options{})
	if _, err := p.Make(context.Background(), "whatever.jpg", 0, 0); err == nil {
		t.Error("Make() with width 0 should fail")
	}
	if _, err := p.Make(context.Background(), "whatever.jpg", -5, 0); err == nil {
		t.Error("Make() with negative width should fail")
	}
}

func TestMakeSourceNotFound(t *testing.T) {
	dir := t.TempDir()
	p := New(newTestStore(t), &stubEngine{}, nil, Options{})

	_, err := p.Make(context.Background(), filepath.Join(dir, "missing.jpg"), 200, 0)
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Make() on missing file error = %v, want ErrSourceNotFound", err)
	}

	_, err = p.Make(context.Background(), dir, 200, 0)
	if !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Make() on directory error = %v, want ErrSourceNotFound", err)
	}
}

func TestMakeUnsupportedType(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "fake.jpg")
	if err := os.WriteFile(src, []byte("not an image at all"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	engine := &stubEngine{}
	p := New(newTestStore(t), engine, nil, Options{})

	_, err := p.Make(context.Background(), src, 200, 0)
	if !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("Make() on text file error = %v, want ErrUnsupportedType", err)
	}
	if n := engine.decodes.Load(); n != 0 {
		t.Errorf("Decode called %d times for rejected source, want 0", n)
	}
}

func TestMakeCanceledContext(t *testing.T) {
	src := writeSourceJPEG(t, t.TempDir(), "photo.jpg")
	p := New(newTestStore(t), &stubEngine{}, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Make(ctx, src, 200, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Make() with canceled context error = %v, want context.Canceled", err)
	}
}

func TestMakeWebPTranscode(t *testing.T) {
	src := writeSourcePNG(t, t.TempDir(), "diagram.png")
	engine := &stubEngine{}
	tc := &stubTranscoder{}
	p := New(newTestStore(t), engine, tc, Options{WebPEnabled: true})

	path, err := p.Make(context.Background(), src, 200, 0)
	if err != nil {
		t.Fatalf("Make() error: %v", err)
	}
	if !strings.HasSuffix(path, ".webp") {
		t.Errorf("Make() with WebP enabled = %q, want .webp path", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("WebP file missing: %v", err)
	}
	// the native entry is kept alongside
	native := strings.TrimSuffix(path, ".webp") + ".png"
	if _, err := os.Stat(native); err != nil {
		t.Errorf("Native entry missing after transcode: %v", err)
	}

	// repeat hits the WebP entry without decoding or transcoding again
	again, err := p.Make(context.Background(), src, 200, 0)
	if err != nil {
		t.Fatalf("Make() error on repeat: %v", err)
	}
	if again != path {
		t.Errorf("Repeat Make() = %q, want %q", again, path)
	}
	if n := engine.decodes.Load(); n != 1 {
		t.Errorf("Decode called %d times, want 1", n)
	}
	if n := tc.calls.Load(); n != 1 {
		t.Errorf("Convert called %d times, want 1", n)
	}
	if err := p.LastTranscodeError(); err != nil {
		t.Errorf("LastTranscodeError = %v, want nil", err)
	}
}

func TestMakeWebPFailureFallsBackToNative(t *testing.T) {
	src := writeSourceJPEG(t, t.TempDir(), "photo.jpg")
	engine := &stubEngine{}
	tc := &stubTranscoder{fail: true}
	p := New(newTestStore(t), engine, tc, Options{WebPEnabled: true})

	path, err := p.Make(context.Background(), src, 200, 0)
	if err != nil {
		t.Fatalf("Make() must not fail on transcode error, got: %v", err)
	}
	if !strings.HasSuffix(path, ".jpg") {
		t.Errorf("Fallback path = %q, want native .jpg", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Native file missing: %v", err)
	}
	if p.LastTranscodeError() == nil {
		t.Error("LastTranscodeError = nil, want retained transcode failure")
	}
}

func TestMakeNilTranscoderDisablesWebP(t *testing.T) {
	src := writeSourceJPEG(t, t.TempDir(), "photo.jpg")
	p := New(newTestStore(t), &stubEngine{}, nil, Options{WebPEnabled: true})

	path, err := p.Make(context.Background(), src, 200, 0)
	if err != nil {
		t.Fatalf("Make() error: %v", err)
	}
	if !strings.HasSuffix(path, ".jpg") {
		t.Errorf("Make() without transcoder = %q, want native .jpg", path)
	}
}

func TestFlushSelective(t *testing.T) {
	srcDir := t.TempDir()
	srcA := writeSourceJPEG(t, srcDir, "keepsake.jpg")
	srcB := writeSourceJPEG(t, srcDir, "discard.jpg")

	engine := &stubEngine{}
	p := New(newTestStore(t), engine, nil, Options{})

	pathA, err := p.Make(context.Background(), srcA, 200, 0)
	if err != nil {
		t.Fatalf("Make(A) error: %v", err)
	}
	pathB, err := p.Make(context.Background(), srcB, 200, 0)
	if err != nil {
		t.Fatalf("Make(B) error: %v", err)
	}

	if err := p.Flush(srcB); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}

	if _, err := os.Stat(pathA); err != nil {
		t.Errorf("Unrelated entry flushed: %v", err)
	}
	if _, err := os.Stat(pathB); !os.IsNotExist(err) {
		t.Errorf("Flushed entry still exists: %v", err)
	}

	// the flushed source regenerates on the next request
	if _, err := p.Make(context.Background(), srcB, 200, 0); err != nil {
		t.Fatalf("Make() after flush error: %v", err)
	}
	if n := engine.decodes.Load(); n != 3 {
		t.Errorf("Decode called %d times, want 3 (two initial, one regeneration)", n)
	}
}

func TestFlushAll(t *testing.T) {
	srcDir := t.TempDir()
	srcA := writeSourceJPEG(t, srcDir, "a.jpg")
	srcB := writeSourceJPEG(t, srcDir, "b.jpg")

	p := New(newTestStore(t), &stubEngine{}, nil, Options{})

	pathA, err := p.Make(context.Background(), srcA, 200, 0)
	if err != nil {
		t.Fatalf("Make(A) error: %v", err)
	}
	pathB, err := p.Make(context.Background(), srcB, 320, 240)
	if err != nil {
		t.Fatalf("Make(B) error: %v", err)
	}

	if err := p.Flush(""); err != nil {
		t.Fatalf("Flush(\"\") error: %v", err)
	}

	for _, path := range []string{pathA, pathB} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Entry %s survived a full flush", path)
		}
	}
}

func TestToWebP(t *testing.T) {
	dir := t.TempDir()
	src := writeSourceJPEG(t, dir, "photo.jpg")
	p := New(newTestStore(t), &stubEngine{}, &stubTranscoder{}, Options{})

	dst, err := p.ToWebP(context.Background(), src, true)
	if err != nil {
		t.Fatalf("ToWebP() error: %v", err)
	}
	if want := filepath.Join(dir, "photo.webp"); dst != want {
		t.Errorf("ToWebP() = %q, want %q", dst, want)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Fatalf("WebP file missing: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("Original should be deleted after conversion: %v", err)
	}
}

func TestToWebPKeepOriginal(t *testing.T) {
	dir := t.TempDir()
	src := writeSourceJPEG(t, dir, "photo.jpg")
	p := New(newTestStore(t), &stubEngine{}, &stubTranscoder{}, Options{})

	if _, err := p.ToWebP(context.Background(), src, false); err != nil {
		t.Fatalf("ToWebP() error: %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("Original should be kept: %v", err)
	}
}

func TestToWebPFailure(t *testing.T) {
	dir := t.TempDir()
	src := writeSourceJPEG(t, dir, "photo.jpg")
	p := New(newTestStore(t), &stubEngine{}, &stubTranscoder{fail: true}, Options{})

	if _, err := p.ToWebP(context.Background(), src, true); err == nil {
		t.Fatal("ToWebP() should surface the conversion error")
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("Original must survive a failed conversion: %v", err)
	}
	if p.LastTranscodeError() == nil {
		t.Error("LastTranscodeError = nil, want retained failure")
	}
}

func TestToWebPWithoutTranscoder(t *testing.T) {
	p := New(newTestStore(t), &stubEngine{}, nil, Options{})
	if _, err := p.ToWebP(context.Background(), "photo.jpg", true); err == nil {
		t.Error("ToWebP() without a transcoder should fail")
	}
}

func TestOptionDefaults(t *testing.T) {
	p := New(newTestStore(t), &stubEngine{}, nil, Options{JPEGQuality: 500, PNGCompression: -1, WebPQuality: 0})
	if p.opts.JPEGQuality != DefaultJPEGQuality {
		t.Errorf("JPEGQuality = %d, want default %d", p.opts.JPEGQuality, DefaultJPEGQuality)
	}
	if p.opts.PNGCompression != DefaultPNGCompression {
		t.Errorf("PNGCompression = %d, want default %d", p.opts.PNGCompression, DefaultPNGCompression)
	}
	if p.opts.WebPQuality != DefaultWebPQuality {
		t.Errorf("WebPQuality = %d, want default %d", p.opts.WebPQuality, DefaultWebPQuality)
	}
}
