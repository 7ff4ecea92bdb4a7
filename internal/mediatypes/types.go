package mediatypes

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// Format identifies an encoded raster format handled by the service.
type Format string

const (
	// FormatJPEG is the JPEG raster format.
	FormatJPEG Format = "jpeg"
	// FormatPNG is the PNG raster format.
	FormatPNG Format = "png"
	// FormatWebP is the WebP output format produced by transcoding.
	FormatWebP Format = "webp"
	// FormatUnknown is returned for anything else.
	FormatUnknown Format = ""
)

// Ext returns the cache file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	}
	return ""
}

// MIME returns the MIME type for the format.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	}
	return "application/octet-stream"
}

// SupportedSource reports whether the format is accepted as pipeline input.
// Only the two raster kinds the cache stores natively are accepted.
func (f Format) SupportedSource() bool {
	return f == FormatJPEG || f == FormatPNG
}

// FromExtension maps a file extension (with or without leading dot, any
// case) to a Format. Returns FormatUnknown for unrecognized extensions.
func FromExtension(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	}
	return FormatUnknown
}

// Sniff detects the raster format of the file at path by reading its
// magic bytes. The filename extension is not trusted.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	// filetype needs at most 261 bytes to classify; files shorter than
	// that are fine, a short read must not be
	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return FormatUnknown, fmt.Errorf("failed to read file header: %w", err)
	}

	kind, err := filetype.Match(head[:n])
	if err != nil {
		return FormatUnknown, fmt.Errorf("failed to detect file type: %w", err)
	}
	return fromKind(kind), nil
}

func fromKind(kind types.Type) Format {
	switch kind.MIME.Value {
	case "image/jpeg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	}
	return FormatUnknown
}
