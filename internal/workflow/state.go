// Package workflow drives one upload → options → processing run. The
// view state machine is pure; Session layers the live pieces (submission,
// progress channel) on top of it.
package workflow

import (
	"errors"

	"github.com/imagestudio/studio-go/internal/models"
)

// View identifies which screen of the workflow is active.
type View string

const (
	ViewUpload     View = "upload"
	ViewOptions    View = "options"
	ViewProcessing View = "processing"
)

var (
	ErrNoFile        = errors.New("no file selected")
	ErrWrongView     = errors.New("transition not allowed from current view")
	ErrBadOperation  = errors.New("unknown operation")
	ErrJobInProgress = errors.New("a job is already being tracked")
)

// State is the pure view state: which screen is shown plus the file and
// operation the user has committed so far. The options and processing
// views are unreachable without a file.
type State struct {
	View      View
	File      *models.UploadedFile
	Selection *models.Selection
}

// NewState returns the initial state, showing the upload view.
func NewState() State {
	return State{View: ViewUpload}
}

// SelectFile moves upload → options and stores the file.
func (s State) SelectFile(file *models.UploadedFile) (State, error) {
	if file == nil {
		return s, ErrNoFile
	}
	if s.View != ViewUpload {
		return s, ErrWrongView
	}
	return State{View: ViewOptions, File: file}, nil
}

// SelectOperation moves options → processing and stores the selection.
// An empty model falls back to the operation's default.
func (s State) SelectOperation(op models.Operation, model string) (State, error) {
	if s.View != ViewOptions {
		return s, ErrWrongView
	}
	if s.File == nil {
		// The options view must never be rendered without a file; this
		// guard mirrors that rendering invariant.
		return s, ErrNoFile
	}
	if !op.Valid() {
		return s, ErrBadOperation
	}
	sel := models.NewSelection(op, model)
	return State{View: ViewProcessing, File: s.File, Selection: &sel}, nil
}

// Back moves processing → options, dropping the operation but keeping
// the file.
func (s State) Back() (State, error) {
	if s.View != ViewProcessing {
		return s, ErrWrongView
	}
	return State{View: ViewOptions, File: s.File}, nil
}

// Reset returns to the upload view from any state, dropping both the
// file and the operation.
func (s State) Reset() State {
	return NewState()
}
