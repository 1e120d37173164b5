package models

// State is the lifecycle phase of one processing job as seen by the client.
type State string

const (
	StateIdle       State = "idle"
	StateUploading  State = "uploading"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Terminal reports whether no further transitions may occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// UploadedFile describes the user-selected binary for one workflow run.
// It is created on selection, consumed by submission and never mutated.
type UploadedFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
	Path string `json:"path,omitempty"`
}

// ProcessingStatus is the single shared status record for a job. It is
// written by the progress tracker and read by everything else. Once a
// terminal state is reached the record is frozen.
type ProcessingStatus struct {
	State         State    `json:"status"`
	Progress      float64  `json:"progress"` // 0..100
	Message       string   `json:"message"`
	EstimatedTime float64  `json:"estimated_time,omitempty"`
	TaskID        string   `json:"task_id,omitempty"`
	OriginalURL   string   `json:"original_url,omitempty"`
	ProcessedURL  string   `json:"processed_url,omitempty"`
	Error         string   `json:"error,omitempty"`
	Metrics       *Metrics `json:"metrics,omitempty"`
}

// Metrics carries optional server-reported processing measurements.
type Metrics struct {
	ProcessingTime float64 `json:"processing_time,omitempty"`
	ModelUsed      string  `json:"model_used,omitempty"`
	Cost           float64 `json:"cost,omitempty"`
}

// ProgressEvent is one frame received on the per-task progress channel.
// Status is optional; when present it can transition the state machine.
type ProgressEvent struct {
	Progress      *float64 `json:"progress,omitempty"`
	Message       string   `json:"message,omitempty"`
	Status        string   `json:"status,omitempty"`
	EstimatedTime *float64 `json:"estimated_time,omitempty"`
	ResultURL     string   `json:"result_url,omitempty"`
	Error         string   `json:"error,omitempty"`
	Metadata      *Metrics `json:"metadata,omitempty"`
}
