package validator

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"
)

// pngBytes encodes a solid white PNG of the given size.
func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestValidateAccept(t *testing.T) {
	v := New(10)
	data := pngBytes(t, 4, 4)

	file, err := v.Validate("photo.png", int64(len(data)), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Validate rejected a valid png: %v", err)
	}
	if file.MIME != "image/png" {
		t.Errorf("Expected mime image/png, got %s", file.MIME)
	}
	if file.Name != "photo.png" {
		t.Errorf("Expected name to be preserved, got %s", file.Name)
	}
}

func TestValidateRejectsTooLarge(t *testing.T) {
	v := New(10)
	data := pngBytes(t, 4, 4)

	// Declared size above the 10 MiB limit.
	_, err := v.Validate("big.png", 11<<20, bytes.NewReader(data))
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("Expected a rejection, got %v", err)
	}
	if rej.Reason != ReasonTooLarge {
		t.Errorf("Expected reason %s, got %s", ReasonTooLarge, rej.Reason)
	}
}

func TestValidateRejectsInvalidType(t *testing.T) {
	v := New(10)

	cases := []struct {
		name    string
		content string
	}{
		{"document.pdf", "%PDF-1.4"},
		{"script.exe", "MZ....."},
		{"animation.gif", "GIF89a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(tc.name, int64(len(tc.content)), strings.NewReader(tc.content))
			rej, ok := AsRejection(err)
			if !ok {
				t.Fatalf("Expected a rejection, got %v", err)
			}
			if rej.Reason != ReasonInvalidType {
				t.Errorf("Expected reason %s, got %s", ReasonInvalidType, rej.Reason)
			}
		})
	}
}

func TestValidateRejectsMismatchedContents(t *testing.T) {
	v := New(10)

	// A .png extension over JPEG bytes must not pass the sniff check.
	_, err := v.Validate("fake.png", 3, bytes.NewReader([]byte{0xFF, 0xD8, 0xFF}))
	rej, ok := AsRejection(err)
	if !ok {
		t.Fatalf("Expected a rejection, got %v", err)
	}
	if rej.Reason != ReasonInvalidType {
		t.Errorf("Expected reason %s, got %s", ReasonInvalidType, rej.Reason)
	}
}

func TestAdvancedValidatorDimensions(t *testing.T) {
	v := NewAdvanced(50, 256, 50)

	t.Run("Accepts in-range image", func(t *testing.T) {
		data := pngBytes(t, 100, 100)
		if _, err := v.Validate("ok.png", int64(len(data)), bytes.NewReader(data)); err != nil {
			t.Fatalf("Expected acceptance, got %v", err)
		}
	})

	t.Run("Rejects oversized image", func(t *testing.T) {
		data := pngBytes(t, 300, 100)
		_, err := v.Validate("wide.png", int64(len(data)), bytes.NewReader(data))
		rej, ok := AsRejection(err)
		if !ok || rej.Reason != ReasonBadDimensions {
			t.Fatalf("Expected dimension rejection, got %v", err)
		}
	})

	t.Run("Rejects undersized image", func(t *testing.T) {
		data := pngBytes(t, 10, 10)
		_, err := v.Validate("tiny.png", int64(len(data)), bytes.NewReader(data))
		rej, ok := AsRejection(err)
		if !ok || rej.Reason != ReasonBadDimensions {
			t.Fatalf("Expected dimension rejection, got %v", err)
		}
	})
}
