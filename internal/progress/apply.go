// Package progress tracks a single processing task over its per-task
// websocket channel. The state transition logic lives in Apply, a pure
// function over (status, event) pairs, so it is testable without a
// socket.
package progress

import "github.com/imagestudio/studio-go/internal/models"

// Apply merges one inbound progress event into the status record and
// returns the updated copy.
//
// Rules:
//   - A terminal status is frozen: events arriving after "completed" or
//     "error" are discarded, so conflicting terminal frames cannot
//     overwrite the first outcome.
//   - Progress never regresses: a frame reporting less than the current
//     high-water mark keeps the previous value (servers are expected to
//     report monotonically but the channel does not guarantee it).
//   - Progress and message override previous values; an event status,
//     when present, drives the state machine.
func Apply(status models.ProcessingStatus, event models.ProgressEvent) models.ProcessingStatus {
	if status.State.Terminal() {
		return status
	}

	if event.Progress != nil {
		p := *event.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p > status.Progress {
			status.Progress = p
		}
	}
	if event.Message != "" {
		status.Message = event.Message
	}
	if event.EstimatedTime != nil {
		status.EstimatedTime = *event.EstimatedTime
	}
	if event.Metadata != nil {
		status.Metrics = event.Metadata
	}

	switch event.Status {
	case "completed":
		status.State = models.StateCompleted
		status.Progress = 100
		if event.ResultURL != "" {
			status.ProcessedURL = event.ResultURL
		}
		if status.Message == "" {
			status.Message = "Processing completed successfully"
		}
	case "error", "failed":
		status.State = models.StateError
		if event.Error != "" {
			status.Error = event.Error
			status.Message = event.Error
		} else if status.Message == "" {
			status.Message = "Processing failed"
		}
	case "processing", "queued", "":
		// Transient frames keep the job in the processing state.
		if !status.State.Terminal() {
			status.State = models.StateProcessing
		}
	}

	return status
}
