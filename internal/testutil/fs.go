package testutil

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// PNGBytes encodes a blank PNG of the given dimensions, for feeding the
// validator and preview code real image data.
func PNGBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("Failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

// WriteTestPNG writes a blank PNG into dir and returns its path.
func WriteTestPNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, PNGBytes(t, w, h), 0644); err != nil {
		t.Fatalf("Failed to write test png: %v", err)
	}
	return path
}
