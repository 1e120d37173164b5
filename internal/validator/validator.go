// Package validator decides whether a candidate file may enter the
// processing workflow. Rejections carry a typed reason so the UI can
// show the right notification without parsing error text.
package validator

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/imagestudio/studio-go/internal/models"
)

// Reason categorizes why a file was rejected.
type Reason string

const (
	ReasonTooLarge      Reason = "file-too-large"
	ReasonInvalidType   Reason = "file-invalid-type"
	ReasonBadDimensions Reason = "file-bad-dimensions"
	ReasonUnreadable    Reason = "file-unreadable"
)

// RejectionError is returned when a file fails validation. The workflow
// must not transition past the upload view while one is returned.
type RejectionError struct {
	Reason  Reason
	Message string
}

func (e *RejectionError) Error() string { return e.Message }

// AsRejection extracts a RejectionError from err, if any.
func AsRejection(err error) (*RejectionError, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

var allowedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// Magic byte signatures for the accepted formats. WebP files start with
// a RIFF header; the format tag at offset 8 is checked separately.
var magicBytes = map[string][]byte{
	"image/png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"image/jpeg": {0xFF, 0xD8, 0xFF},
	"image/webp": {0x52, 0x49, 0x46, 0x46}, // "RIFF"
}

const mib = 1 << 20

// SupportedType reports whether a filename carries one of the accepted
// image extensions. Used by the drop-folder watcher to filter events
// before running the full validation.
func SupportedType(name string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Validator checks candidate files against the configured limits.
type Validator struct {
	maxSize      int64 // bytes
	maxDimension int   // advanced profile only, 0 disables
	minDimension int
}

// New returns the basic validator used by the standard upload flow:
// type and size checks only.
func New(maxSizeMB int) *Validator {
	return &Validator{maxSize: int64(maxSizeMB) * mib}
}

// NewAdvanced returns the validator used by the advanced upload flow,
// which additionally bounds pixel dimensions by decoding only the
// image header before acceptance.
func NewAdvanced(maxSizeMB, maxDimension, minDimension int) *Validator {
	return &Validator{
		maxSize:      int64(maxSizeMB) * mib,
		maxDimension: maxDimension,
		minDimension: minDimension,
	}
}

// Validate checks name, declared size and content against the
// configured limits. The reader must be positioned at the start of the
// file; Validate reads at most the image header from it.
// On success it returns the UploadedFile to hand to the workflow.
func (v *Validator) Validate(name string, size int64, r io.Reader) (*models.UploadedFile, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mime, ok := allowedExtensions[ext]
	if !ok {
		return nil, &RejectionError{
			Reason:  ReasonInvalidType,
			Message: fmt.Sprintf("unsupported file type %q, expected .png, .jpg, .jpeg or .webp", ext),
		}
	}

	if size > v.maxSize {
		return nil, &RejectionError{
			Reason:  ReasonTooLarge,
			Message: fmt.Sprintf("file is %d bytes, maximum allowed is %d MB", size, v.maxSize/mib),
		}
	}

	// Sniff the leading bytes so a renamed .exe doesn't get through on
	// extension alone.
	header := make([]byte, 512)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, &RejectionError{Reason: ReasonUnreadable, Message: "could not read file contents"}
	}
	header = header[:n]

	if !bytes.HasPrefix(header, magicBytes[mime]) {
		return nil, &RejectionError{
			Reason:  ReasonInvalidType,
			Message: "file contents do not match its extension",
		}
	}
	if mime == "image/webp" && (len(header) < 12 || string(header[8:12]) != "WEBP") {
		return nil, &RejectionError{
			Reason:  ReasonInvalidType,
			Message: "file contents do not match its extension",
		}
	}

	if v.maxDimension > 0 {
		if err := v.checkDimensions(header, r); err != nil {
			return nil, err
		}
	}

	return &models.UploadedFile{Name: name, Size: size, MIME: mime}, nil
}

// checkDimensions decodes only the image configuration (header) from
// the already-read prefix plus the remaining stream.
func (v *Validator) checkDimensions(header []byte, rest io.Reader) error {
	cfg, _, err := image.DecodeConfig(io.MultiReader(bytes.NewReader(header), rest))
	if err != nil {
		return &RejectionError{Reason: ReasonUnreadable, Message: "could not decode image dimensions"}
	}
	if cfg.Width > v.maxDimension || cfg.Height > v.maxDimension {
		return &RejectionError{
			Reason:  ReasonBadDimensions,
			Message: fmt.Sprintf("image is %dx%d, maximum dimension is %dpx", cfg.Width, cfg.Height, v.maxDimension),
		}
	}
	if cfg.Width < v.minDimension || cfg.Height < v.minDimension {
		return &RejectionError{
			Reason:  ReasonBadDimensions,
			Message: fmt.Sprintf("image is %dx%d, minimum dimension is %dpx", cfg.Width, cfg.Height, v.minDimension),
		}
	}
	return nil
}
