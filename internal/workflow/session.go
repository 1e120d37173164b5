package workflow

import (
	"context"
	"io"
	"sync"

	"github.com/imagestudio/studio-go/internal/backend"
	"github.com/imagestudio/studio-go/internal/models"
	"github.com/imagestudio/studio-go/internal/progress"
)

// Session owns one workflow run: the current view state, the shared
// ProcessingStatus record, and at most one live progress tracker. The
// tracker is the only writer of the status while a job is in flight;
// everything else reads through Status().
type Session struct {
	client        *backend.Client
	wsBase        string
	maxReconnects int
	onUpdate      progress.UpdateFunc

	mu      sync.Mutex
	state   State
	status  models.ProcessingStatus
	tracker *progress.Tracker
}

// NewSession creates an idle session in the upload view.
func NewSession(client *backend.Client, wsBase string, maxReconnects int, onUpdate progress.UpdateFunc) *Session {
	return &Session{
		client:        client,
		wsBase:        wsBase,
		maxReconnects: maxReconnects,
		onUpdate:      onUpdate,
		state:         NewState(),
		status:        models.ProcessingStatus{State: models.StateIdle},
	}
}

// State returns the current view state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status returns the current status record. While a tracker is live,
// the tracker's view wins, except for the original-image URL: the
// progress channel never carries it, so the submission's value is kept.
func (s *Session) Status() models.ProcessingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker != nil {
		status := s.tracker.Status()
		if status.OriginalURL == "" {
			status.OriginalURL = s.status.OriginalURL
		}
		return status
	}
	return s.status
}

// SelectFile accepts a validated file and moves to the options view.
func (s *Session) SelectFile(file *models.UploadedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.state.SelectFile(file)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// SelectOperation commits the operation choice and moves to the
// processing view.
func (s *Session) SelectOperation(op models.Operation, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := s.state.SelectOperation(op, model)
	if err != nil {
		return err
	}
	s.state = next
	return nil
}

// Tune adjusts operation-specific knobs on the pending selection. It is
// a no-op before an operation has been selected.
func (s *Session) Tune(fn func(*models.Selection)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Selection != nil {
		fn(s.state.Selection)
	}
}

// Back returns from processing to the options view, keeping the file
// and dropping the operation. Any live progress channel is released.
func (s *Session) Back() error {
	s.mu.Lock()
	next, err := s.state.Back()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = next
	tracker := s.tracker
	s.tracker = nil
	s.status = models.ProcessingStatus{State: models.StateIdle}
	s.mu.Unlock()

	if tracker != nil {
		tracker.Close()
	}
	return nil
}

// Reset returns to the upload view from any state, dropping the file,
// the operation and the status. A live progress channel is closed
// before the state is discarded so no connection dangles.
func (s *Session) Reset() {
	s.mu.Lock()
	tracker := s.tracker
	s.tracker = nil
	s.state = s.state.Reset()
	s.status = models.ProcessingStatus{State: models.StateIdle}
	s.mu.Unlock()

	if tracker != nil {
		tracker.Close()
	}
}

// SubmitSync runs the fallback submission mode: one blocking request
// that returns the final JobResult with no intermediate events. Used
// when no progress channel is available.
func (s *Session) SubmitSync(ctx context.Context, r io.Reader) (*models.JobResult, error) {
	file, sel, err := s.beginSubmission()
	if err != nil {
		return nil, err
	}

	result, err := s.client.Process(ctx, file, r, *sel)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = models.ProcessingStatus{
			State:   models.StateError,
			Message: err.Error(),
			Error:   err.Error(),
		}
		return nil, err
	}
	s.status = models.ProcessingStatus{
		State:        models.StateCompleted,
		Progress:     100,
		Message:      "Processing completed successfully",
		ProcessedURL: result.OutputPath,
		Metrics:      result.Metadata,
	}
	return result, nil
}

// SubmitAsync submits the job and opens the per-task progress channel.
// Any previous tracker is closed first; only one job is tracked per
// session at a time. The returned submission carries the task id and
// the original-image URL.
func (s *Session) SubmitAsync(ctx context.Context, r io.Reader) (*models.Submission, error) {
	file, sel, err := s.beginSubmission()
	if err != nil {
		return nil, err
	}

	sub, err := s.client.Enhance(ctx, file, r, *sel)
	if err != nil {
		s.mu.Lock()
		s.status = models.ProcessingStatus{
			State:   models.StateError,
			Message: err.Error(),
			Error:   err.Error(),
		}
		s.mu.Unlock()
		return nil, err
	}

	tracker := progress.NewTracker(s.wsBase, sub.TaskID, s.maxReconnects, s.onUpdate)

	s.mu.Lock()
	old := s.tracker
	s.tracker = tracker
	s.status = models.ProcessingStatus{
		State:       models.StateProcessing,
		TaskID:      sub.TaskID,
		OriginalURL: sub.OriginalURL,
		Message:     "Task queued for processing",
	}
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return sub, nil
}

// Await runs the progress channel to its terminal state and returns the
// final status. It blocks until completion, error, or ctx cancellation.
func (s *Session) Await(ctx context.Context) models.ProcessingStatus {
	s.mu.Lock()
	tracker := s.tracker
	s.mu.Unlock()

	if tracker == nil {
		return s.Status()
	}

	final := tracker.Run(ctx)

	s.mu.Lock()
	if s.tracker == tracker {
		if final.OriginalURL == "" {
			final.OriginalURL = s.status.OriginalURL
		}
		s.status = final
	}
	s.mu.Unlock()
	return final
}

// beginSubmission validates the view state and flips the status record
// to "uploading".
func (s *Session) beginSubmission() (*models.UploadedFile, *models.Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.View != ViewProcessing {
		return nil, nil, ErrWrongView
	}
	if s.state.File == nil || s.state.Selection == nil {
		return nil, nil, ErrNoFile
	}
	s.status = models.ProcessingStatus{
		State:    models.StateUploading,
		Message:  "Uploading image...",
		Progress: 0,
	}
	return s.state.File, s.state.Selection, nil
}
