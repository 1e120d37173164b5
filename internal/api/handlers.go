package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/imagestudio/studio-go/internal/backend"
	"github.com/imagestudio/studio-go/internal/models"
	"github.com/imagestudio/studio-go/internal/validator"
)

// maxFormMemory bounds how much of a multipart upload is buffered in
// memory before spilling to disk.
const maxFormMemory = 32 << 20

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version})
}

// handleHealth reports healthy only when the backend is reachable too.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.app.Backend().Health(ctx); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Processing backend unreachable")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetModels(w http.ResponseWriter, r *http.Request) {
	catalog, err := s.app.Backend().Models(r.Context())
	if err != nil {
		RespondWithError(w, http.StatusBadGateway, "Failed to fetch model catalog")
		return
	}
	RespondWithJSON(w, http.StatusOK, catalog)
}

// handleUpload validates a file without submitting it. The browser uses
// this to gate the upload -> options transition, so the basic profile
// applies here; the advanced limits are checked again at submission.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, err := s.validateUpload(w, r, s.uploadValidator)
	if err != nil {
		return // response already written
	}
	RespondWithJSON(w, http.StatusOK, file)
}

// handleProcessAsync accepts the file and operation in one request,
// submits the job to the backend and starts relaying its progress
// channel. Responds with the task id and original-image URL.
func (s *Server) handleProcessAsync(w http.ResponseWriter, r *http.Request) {
	file, sel, fh, ok := s.parseJobRequest(w, r)
	if !ok {
		return
	}
	defer fh.Close()

	started := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), s.app.Config().SubmitTimeout(string(sel.Operation)))
	defer cancel()

	sub, err := s.app.Backend().Enhance(ctx, file, fh, sel)
	if err != nil {
		respondSubmissionError(w, err)
		return
	}

	historyID, err := s.store.RecordJob(sub.TaskID, file.Name, string(sel.Operation), sel.Model)
	if err != nil {
		log.Printf("Could not record job %s in history: %v", sub.TaskID, err)
	}
	s.trackTask(sub.TaskID, historyID, started)

	RespondWithJSON(w, http.StatusAccepted, sub)
}

// handleProcessSync runs the fallback mode: block until the backend has
// finished and return the final result directly.
func (s *Server) handleProcessSync(w http.ResponseWriter, r *http.Request) {
	file, sel, fh, ok := s.parseJobRequest(w, r)
	if !ok {
		return
	}
	defer fh.Close()

	// Sync jobs have no backend task id; generate one so history rows
	// stay addressable.
	started := time.Now()
	historyID, err := s.store.RecordJob("sync-"+uuid.NewString(), file.Name, string(sel.Operation), sel.Model)
	if err != nil {
		log.Printf("Could not record sync job in history: %v", err)
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.app.Config().SubmitTimeout(string(sel.Operation)))
	defer cancel()

	result, err := s.app.Backend().Process(ctx, file, fh, sel)
	if err != nil {
		s.store.CompleteJob(historyID, string(models.StateError), "", time.Since(started))
		respondSubmissionError(w, err)
		return
	}

	s.store.CompleteJob(historyID, string(models.StateCompleted), result.OutputFilename, time.Since(started))
	RespondWithJSON(w, http.StatusOK, result)
}

// batchItem is one per-file outcome in a batch response.
type batchItem struct {
	Filename string            `json:"filename"`
	Status   string            `json:"status"`
	Result   *models.JobResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// handleProcessBatch runs the sync flow over every file part in the
// request, applying one operation to all of them. Files that fail
// validation or processing get an error entry instead of aborting the
// whole batch.
func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		RespondWithError(w, http.StatusBadRequest, "Missing 'files' field")
		return
	}

	op := models.Operation(r.FormValue("operation"))
	if !op.Valid() {
		RespondWithError(w, http.StatusBadRequest, "Unknown operation: "+r.FormValue("operation"))
		return
	}
	sel := models.NewSelection(op, r.FormValue("model"))

	var (
		results   []batchItem
		succeeded int
		totalCost float64
		totalTime float64
	)
	for _, header := range headers {
		item := batchItem{Filename: header.Filename}
		result, err := s.processBatchFile(r.Context(), header, sel)
		if err != nil {
			item.Status = "error"
			item.Error = err.Error()
		} else {
			item.Status = "success"
			item.Result = result
			succeeded++
			if result.Metadata != nil {
				totalCost += result.Metadata.Cost
				totalTime += result.Metadata.ProcessingTime
			}
		}
		results = append(results, item)
	}

	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":                "success",
		"message":               fmt.Sprintf("Batch processed %d images", succeeded),
		"results":               results,
		"total_cost":            totalCost,
		"total_processing_time": totalTime,
	})
}

// processBatchFile validates and synchronously processes a single file
// part, recording it in history like any other sync job.
func (s *Server) processBatchFile(ctx context.Context, header *multipart.FileHeader, sel models.Selection) (*models.JobResult, error) {
	fh, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	file, err := s.jobValidator.Validate(header.Filename, header.Size, fh)
	if err != nil {
		return nil, err
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	started := time.Now()
	historyID, err := s.store.RecordJob("sync-"+uuid.NewString(), file.Name, string(sel.Operation), sel.Model)
	if err != nil {
		log.Printf("Could not record batch job in history: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.app.Config().SubmitTimeout(string(sel.Operation)))
	defer cancel()

	result, err := s.app.Backend().Process(ctx, file, fh, sel)
	if err != nil {
		s.store.CompleteJob(historyID, string(models.StateError), "", time.Since(started))
		return nil, err
	}
	s.store.CompleteJob(historyID, string(models.StateCompleted), result.OutputFilename, time.Since(started))
	return result, nil
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	status, ok := s.taskStatus(taskID)
	if ok {
		RespondWithJSON(w, http.StatusOK, status)
		return
	}

	// Finished tasks no longer hold a live tracker; answer from the
	// history row instead.
	entry, err := s.store.GetJobByTaskID(taskID)
	if err != nil {
		RespondWithError(w, http.StatusNotFound, "Task not found")
		return
	}
	status = models.ProcessingStatus{
		State:    models.State(entry.Status),
		Progress: entry.Progress,
		Message:  entry.Message,
		TaskID:   entry.TaskID,
	}
	if entry.OutputFilename != "" {
		status.ProcessedURL = "/api/download/" + url.PathEscape(entry.OutputFilename)
	}
	RespondWithJSON(w, http.StatusOK, status)
}

// handleDownload streams the processed artifact from the backend to the
// browser, preserving the server-side filename so the saved file keeps
// the correct extension.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	filename, _ := url.PathUnescape(chi.URLParam(r, "filename"))
	if filename == "" || filename != path.Base(filename) {
		RespondWithError(w, http.StatusBadRequest, "Invalid filename")
		return
	}

	endpoint := s.app.Config().Backend.BaseURL + "/api/v1/download/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(r.Context(), "GET", endpoint, nil)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to create request")
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Error fetching processed file %s: %v", filename, err)
		RespondWithError(w, http.StatusBadGateway, "Failed to fetch processed file")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		RespondWithError(w, http.StatusNotFound, "no processed file available")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Response already started, can't send an error payload.
		log.Printf("Error streaming processed file %s: %v", filename, err)
	}
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.GetHistory(50)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to retrieve history")
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	RespondWithJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	RespondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetJobsStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.JobManager().GetStatus())
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing 'name' parameter")
		return
	}
	if err := s.app.JobManager().RunJob(name, s.app); err != nil {
		RespondWithError(w, http.StatusConflict, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Job started: " + name})
}

// validateUpload parses the multipart file field and runs the given
// validator profile. On failure it writes the error response and
// returns a non-nil error.
func (s *Server) validateUpload(w http.ResponseWriter, r *http.Request, v *validator.Validator) (*models.UploadedFile, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, err
	}
	fh, header, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Missing 'file' field")
		return nil, err
	}
	defer fh.Close()

	file, err := v.Validate(header.Filename, header.Size, fh)
	if err != nil {
		if rej, ok := validator.AsRejection(err); ok {
			RespondWithJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":  rej.Message,
				"reason": string(rej.Reason),
			})
			return nil, err
		}
		RespondWithError(w, http.StatusBadRequest, "File validation failed")
		return nil, err
	}
	return file, nil
}

// parseJobRequest validates the upload and reads the operation fields.
// The returned reader is rewound to the start of the file.
func (s *Server) parseJobRequest(w http.ResponseWriter, r *http.Request) (*models.UploadedFile, models.Selection, io.ReadSeekCloser, bool) {
	file, err := s.validateUpload(w, r, s.jobValidator)
	if err != nil {
		return nil, models.Selection{}, nil, false
	}

	op := models.Operation(r.FormValue("operation"))
	if !op.Valid() {
		RespondWithError(w, http.StatusBadRequest, "Unknown operation: "+r.FormValue("operation"))
		return nil, models.Selection{}, nil, false
	}
	sel := models.NewSelection(op, r.FormValue("model"))
	sel.FaceEnhance = r.FormValue("face_enhance") == "true"
	if v := r.FormValue("denoise"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			sel.DenoiseStrength = d
		}
	}
	if v := r.FormValue("outscale"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sel.Outscale = n
		}
	}

	// Re-open the file part: validation consumed the header bytes.
	fh, _, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "Missing 'file' field")
		return nil, models.Selection{}, nil, false
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		fh.Close()
		RespondWithError(w, http.StatusInternalServerError, "Could not rewind upload")
		return nil, models.Selection{}, nil, false
	}
	return file, sel, fh, true
}

// respondSubmissionError maps the client error taxonomy onto HTTP codes
// so the browser can show the right notification.
func respondSubmissionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrTimeout):
		RespondWithError(w, http.StatusGatewayTimeout, err.Error())
	case isConnectionError(err):
		RespondWithError(w, http.StatusBadGateway, err.Error())
	case isLogicalError(err):
		RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var sub *backend.SubmissionError
		if errors.As(err, &sub) && sub.StatusCode >= 400 && sub.StatusCode < 500 {
			RespondWithError(w, sub.StatusCode, sub.Error())
			return
		}
		RespondWithError(w, http.StatusBadGateway, err.Error())
	}
}

func isConnectionError(err error) bool {
	var conn *backend.ConnectionError
	return errors.As(err, &conn)
}

func isLogicalError(err error) bool {
	var logical *backend.LogicalError
	return errors.As(err, &logical)
}

// outputName extracts the artifact filename from a result URL.
func outputName(resultURL string) string {
	if resultURL == "" {
		return ""
	}
	return path.Base(strings.TrimSuffix(resultURL, "/"))
}
