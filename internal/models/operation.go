package models

// Operation is the high-level AI transformation requested by the user.
type Operation string

const (
	OpBackgroundRemoval Operation = "background_removal"
	OpUpscaling         Operation = "upscaling"
	OpEnhancement       Operation = "enhancement"
	OpGeneration        Operation = "generation"
)

// DefaultModel is sent when the UI did not pick a specific model variant.
const DefaultModel = "default"

// defaultModels maps each operation to the model variant used when the
// caller does not choose one explicitly.
var defaultModels = map[Operation]string{
	OpBackgroundRemoval: "rembg",
	OpUpscaling:         "realesrgan_4x",
	OpEnhancement:       "gfpgan",
	OpGeneration:        "stable_diffusion",
}

// Selection pairs an operation with the model variant implementing it.
// Model is never empty.
type Selection struct {
	Operation Operation `json:"operation"`
	Model     string    `json:"model"`

	// Operation-specific tuning knobs, sent as extra form fields.
	DenoiseStrength float64 `json:"denoise_strength,omitempty"`
	Outscale        int     `json:"outscale,omitempty"`
	FaceEnhance     bool    `json:"face_enhance,omitempty"`
}

// NewSelection builds a Selection, filling in the operation's default
// model when model is empty. Unknown operations fall back to "default".
func NewSelection(op Operation, model string) Selection {
	if model == "" {
		if m, ok := defaultModels[op]; ok {
			model = m
		} else {
			model = DefaultModel
		}
	}
	return Selection{Operation: op, Model: model}
}

// Valid reports whether op is one of the supported operations.
func (op Operation) Valid() bool {
	switch op {
	case OpBackgroundRemoval, OpUpscaling, OpEnhancement, OpGeneration:
		return true
	}
	return false
}
