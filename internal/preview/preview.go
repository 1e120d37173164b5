// Package preview derives the before/after comparison shown once a job
// completes: the pixel dimensions of both images, the "N× larger" ratio
// label for upscaling operations, and a side-by-side thumbnail.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	_ "image/png" // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/nfnt/resize"
)

const thumbnailHeight uint = 300

// Dimensions holds the decoded size of one image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Comparison describes the original next to the processed result.
type Comparison struct {
	Original  Dimensions `json:"original"`
	Processed Dimensions `json:"processed"`
	// RatioLabel is set for upscaling-style results, e.g. "4× larger".
	RatioLabel string `json:"ratio_label,omitempty"`
}

// Decode reads only the image header to get its dimensions.
func Decode(data []byte) (Dimensions, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// Compare decodes both images and derives the comparison. The ratio
// label is only attached when the processed image is strictly larger.
func Compare(original, processed []byte) (*Comparison, error) {
	before, err := Decode(original)
	if err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}
	after, err := Decode(processed)
	if err != nil {
		return nil, fmt.Errorf("processed: %w", err)
	}

	cmp := &Comparison{Original: before, Processed: after}
	if before.Width > 0 && after.Width > before.Width {
		ratio := float64(after.Width) / float64(before.Width)
		if ratio == float64(int(ratio)) {
			cmp.RatioLabel = fmt.Sprintf("%d× larger", int(ratio))
		} else {
			cmp.RatioLabel = fmt.Sprintf("%.1f× larger", ratio)
		}
	}
	return cmp, nil
}

// SideBySide renders the two images next to each other at a common
// height, encoded as a JPEG thumbnail for the comparison slider.
func SideBySide(original, processed []byte) ([]byte, error) {
	left, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return nil, fmt.Errorf("failed to decode original: %w", err)
	}
	right, _, err := image.Decode(bytes.NewReader(processed))
	if err != nil {
		return nil, fmt.Errorf("failed to decode processed: %w", err)
	}

	left = resize.Resize(0, thumbnailHeight, left, resize.Lanczos3)
	right = resize.Resize(0, thumbnailHeight, right, resize.Lanczos3)

	lb, rb := left.Bounds(), right.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rb.Dx(), int(thumbnailHeight)))
	draw.Draw(canvas, image.Rect(0, 0, lb.Dx(), lb.Dy()), left, lb.Min, draw.Src)
	draw.Draw(canvas, image.Rect(lb.Dx(), 0, lb.Dx()+rb.Dx(), rb.Dy()), right, rb.Min, draw.Src)

	var buf bytes.Buffer
	// Quality 75 is a good balance for a preview.
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
