package models

import (
	"errors"
	"time"
)

// ErrNoProcessedFile is returned when a success result is missing the
// output path or filename it is required to carry.
var ErrNoProcessedFile = errors.New("no processed file available")

// JobResult is the server payload describing a finished job. Created
// once at completion and read-only afterwards.
type JobResult struct {
	Status         string   `json:"status"` // "success" or "error"
	OutputPath     string   `json:"output_path,omitempty"`
	OutputFilename string   `json:"output_filename,omitempty"`
	Error          string   `json:"error,omitempty"`
	Metadata       *Metrics `json:"metadata,omitempty"`
}

// Success reports whether the result is logically successful. A
// "success" status without output fields is not a success; callers must
// surface ErrNoProcessedFile instead of issuing a request with empty
// parameters.
func (r *JobResult) Success() bool {
	return r.Status == "success" && r.OutputPath != "" && r.OutputFilename != ""
}

// Validate normalizes the boundary shape: success results must carry
// both output fields, error results must carry a message.
func (r *JobResult) Validate() error {
	switch r.Status {
	case "success":
		if r.OutputPath == "" || r.OutputFilename == "" {
			return ErrNoProcessedFile
		}
		return nil
	case "error":
		return nil
	default:
		return errors.New("unrecognized result status: " + r.Status)
	}
}

// Submission is the server acknowledgement of an async job.
type Submission struct {
	TaskID      string `json:"task_id"`
	OriginalURL string `json:"original_url"`
}

// HistoryEntry is one recorded job in the processing history store.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	TaskID         string    `json:"task_id"`
	Filename       string    `json:"filename"`
	Operation      string    `json:"operation"`
	Model          string    `json:"model"`
	Status         string    `json:"status"`
	Progress       float64   `json:"progress"`
	Message        string    `json:"message,omitempty"`
	OutputFilename string    `json:"output_filename,omitempty"`
	DurationMS     int64     `json:"duration_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
