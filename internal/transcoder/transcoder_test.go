package transcoder

import (
	"context"
	"errors"
	"testing"
)

func TestConvertCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New().Convert(ctx, "in.jpg", "out.webp", 80)
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Convert() error = %v, want wrapped ErrConversionFailed", err)
	}
}

func TestConvertWithoutVips(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized in this process")
	}

	err := New().Convert(context.Background(), "in.jpg", "out.webp", 80)
	if !errors.Is(err, ErrConversionFailed) {
		t.Errorf("Convert() error = %v, want wrapped ErrConversionFailed", err)
	}
}
