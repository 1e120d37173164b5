package preview

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("Failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	dims, err := Decode(pngBytes(t, 64, 48))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if dims.Width != 64 || dims.Height != 48 {
		t.Errorf("Expected 64x48, got %dx%d", dims.Width, dims.Height)
	}

	if _, err := Decode([]byte("not an image")); err == nil {
		t.Error("Expected an error for non-image data")
	}
}

func TestCompareUpscaleRatio(t *testing.T) {
	cmp, err := Compare(pngBytes(t, 100, 100), pngBytes(t, 400, 400))
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp.RatioLabel != "4× larger" {
		t.Errorf("Expected '4× larger', got %q", cmp.RatioLabel)
	}
	if cmp.Original.Width != 100 || cmp.Processed.Width != 400 {
		t.Errorf("Unexpected dimensions: %+v", cmp)
	}
}

func TestCompareNoRatioForSameSize(t *testing.T) {
	// Background removal keeps dimensions; no ratio label applies.
	cmp, err := Compare(pngBytes(t, 100, 100), pngBytes(t, 100, 100))
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp.RatioLabel != "" {
		t.Errorf("Expected no ratio label, got %q", cmp.RatioLabel)
	}
}

func TestCompareFractionalRatio(t *testing.T) {
	cmp, err := Compare(pngBytes(t, 100, 100), pngBytes(t, 150, 150))
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp.RatioLabel != "1.5× larger" {
		t.Errorf("Expected '1.5× larger', got %q", cmp.RatioLabel)
	}
}

func TestSideBySide(t *testing.T) {
	out, err := SideBySide(pngBytes(t, 60, 60), pngBytes(t, 120, 120))
	if err != nil {
		t.Fatalf("SideBySide failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Output is not a valid JPEG: %v", err)
	}
	if img.Bounds().Dy() != 300 {
		t.Errorf("Expected thumbnail height 300, got %d", img.Bounds().Dy())
	}
	// Two equally-proportioned images resized to the same height should
	// sit side by side at double the single width.
	if img.Bounds().Dx() != 600 {
		t.Errorf("Expected combined width 600, got %d", img.Bounds().Dx())
	}
}
