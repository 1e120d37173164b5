// It defines the API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/imagestudio/studio-go/internal/core"
	"github.com/imagestudio/studio-go/internal/models"
	"github.com/imagestudio/studio-go/internal/progress"
	"github.com/imagestudio/studio-go/internal/store"
	"github.com/imagestudio/studio-go/internal/validator"
)

// Server holds the dependencies for our API.
type Server struct {
	app   *core.App
	store *store.Store

	// uploadValidator gates the upload view: type and size only.
	// jobValidator guards submissions with the advanced profile, which
	// also bounds pixel dimensions.
	uploadValidator *validator.Validator
	jobValidator    *validator.Validator

	mu       sync.Mutex
	trackers map[string]*progress.Tracker // live task id -> tracker
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	cfg := app.Config()
	return &Server{
		app:             app,
		store:           store.New(app.DB()),
		uploadValidator: validator.New(cfg.Upload.MaxSizeMB),
		jobValidator:    validator.NewAdvanced(cfg.Upload.MaxSizeMBAdv, cfg.Upload.MaxDimension, cfg.Upload.MinDimension),
		trackers:        make(map[string]*progress.Tracker),
	}
}

// Store returns the store instance.
func (s *Server) Store() *store.Store {
	return s.store
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)    // Logs requests to the console
	r.Use(middleware.Recoverer) // Recovers from panics

	r.Get("/api/version", s.handleGetVersion)
	r.Get("/api/health", s.handleHealth)
	r.Get("/api/models", s.handleGetModels)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Post("/process", s.handleProcessAsync)
		r.Post("/process/sync", s.handleProcessSync)
		r.Post("/process/batch", s.handleProcessBatch)
		r.Get("/status/{taskID}", s.handleGetStatus)
		r.Get("/download/{filename}", s.handleDownload)
		r.Get("/history", s.handleGetHistory)
		r.Get("/stats", s.handleGetStats)

		// Admin job triggers
		r.Get("/jobs/status", s.handleGetJobsStatus)
		r.Post("/jobs/run", s.handleRunJob)
	})

	// WebSocket route: the browser listens here for progress frames
	// relayed from the backend.
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	return r
}

// trackTask runs one task's progress channel to its terminal state,
// relaying every update to connected browsers and the history store.
func (s *Server) trackTask(taskID string, historyID int64, started time.Time) {
	cfg := s.app.Config()
	tracker := progress.NewTracker(cfg.Backend.WebSocketURL, taskID, cfg.Backend.MaxReconnects, func(status models.ProcessingStatus) {
		s.app.WsHub().BroadcastJSON(status)
		s.store.UpdateJobStatus(historyID, string(status.State), status.Progress, status.Message)
	})

	s.mu.Lock()
	// Opening a new job for the same task id discards any prior channel.
	if old, ok := s.trackers[taskID]; ok {
		old.Close()
	}
	s.trackers[taskID] = tracker
	s.mu.Unlock()

	go func() {
		final := tracker.Run(context.Background())
		s.app.WsHub().BroadcastJSON(final)
		s.store.CompleteJob(historyID, string(final.State), outputName(final.ProcessedURL), time.Since(started))

		s.mu.Lock()
		if s.trackers[taskID] == tracker {
			delete(s.trackers, taskID)
		}
		s.mu.Unlock()
	}()
}

// SubmitFile validates a file sitting on disk and runs the async
// submission flow for it. It implements the drop-folder watcher's
// Submitter interface.
func (s *Server) SubmitFile(filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	file, err := s.jobValidator.Validate(filepath.Base(filePath), info.Size(), f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	op := models.Operation(s.app.Config().Watch.Operation)
	if !op.Valid() {
		op = models.OpEnhancement
	}
	sel := models.NewSelection(op, "")

	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.app.Config().SubmitTimeout(string(op)))
	defer cancel()

	sub, err := s.app.Backend().Enhance(ctx, file, f, sel)
	if err != nil {
		return err
	}

	historyID, err := s.store.RecordJob(sub.TaskID, file.Name, string(sel.Operation), sel.Model)
	if err != nil {
		log.Printf("Could not record job %s in history: %v", sub.TaskID, err)
	}
	s.trackTask(sub.TaskID, historyID, started)
	return nil
}

// taskStatus returns the live tracker's status for a task, if any.
func (s *Server) taskStatus(taskID string) (models.ProcessingStatus, bool) {
	s.mu.Lock()
	tracker, ok := s.trackers[taskID]
	s.mu.Unlock()
	if !ok {
		return models.ProcessingStatus{}, false
	}
	return tracker.Status(), true
}
