// Package backend is the HTTP client for the external AI processing
// service. The service is a black box: this package only packages
// multipart submissions, interprets the JSON it answers with, and
// fetches processed binaries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/imagestudio/studio-go/internal/models"
)

// Client talks to one AI backend instance. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the backend at baseURL (no trailing slash).
// Per-request deadlines are set through contexts, not the underlying
// http.Client, because they vary by operation.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{},
	}
}

// errorBody is the error shape FastAPI-style backends answer with.
type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// Process submits a job in sync mode: POST /api/v1/process blocks until
// the server has finished and the body carries the final JobResult.
// The context should carry the per-operation deadline.
func (c *Client) Process(ctx context.Context, file *models.UploadedFile, r io.Reader, sel models.Selection) (*models.JobResult, error) {
	fields := map[string]string{
		"operation": string(sel.Operation),
		"model":     sel.Model,
	}
	body, contentType, err := multipartBody(file.Name, r, fields)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/api/v1/process", body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	// The sync endpoint wraps the result: {status, result: {...}, error}.
	var payload struct {
		Status string            `json:"status"`
		Result *models.JobResult `json:"result"`
		Error  string            `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Message: "malformed response from processing server"}
	}

	// HTTP 200 with a logical error inside is still a failure.
	if payload.Status == "error" {
		return nil, &LogicalError{Message: payload.Error}
	}
	if payload.Status != "success" || payload.Result == nil {
		return nil, &LogicalError{Message: "processing server returned an unrecognized result"}
	}

	result := payload.Result
	result.Status = payload.Status
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// Enhance submits a job in async mode: POST /api/v1/enhance returns
// immediately with a task id and the original-image URL; processing is
// observed through the per-task progress channel.
func (c *Client) Enhance(ctx context.Context, file *models.UploadedFile, r io.Reader, sel models.Selection) (*models.Submission, error) {
	fields := map[string]string{
		"enhancement":  string(sel.Operation),
		"model":        sel.Model,
		"face_enhance": strconv.FormatBool(sel.FaceEnhance),
	}
	if sel.DenoiseStrength != 0 {
		fields["denoise"] = strconv.FormatFloat(sel.DenoiseStrength, 'f', -1, 64)
	}
	if sel.Outscale != 0 {
		fields["outscale"] = strconv.Itoa(sel.Outscale)
	}

	body, contentType, err := multipartBody(file.Name, r, fields)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/api/v1/enhance", body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var sub models.Submission
	if err := json.NewDecoder(resp.Body).Decode(&sub); err != nil {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Message: "malformed response from processing server"}
	}
	if sub.TaskID == "" {
		return nil, &LogicalError{Message: "processing server did not return a task id"}
	}
	return &sub, nil
}

// Upload sends a bare file to /api/upload and returns once the server
// acknowledges receipt. The response body is backend-defined and only
// checked for an error status.
func (c *Client) Upload(ctx context.Context, file *models.UploadedFile, r io.Reader) error {
	body, contentType, err := multipartBody(file.Name, r, nil)
	if err != nil {
		return err
	}
	resp, err := c.post(ctx, "/api/upload", body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return checkStatus(resp)
}

// Models fetches the backend's model catalog, keyed by operation.
func (c *Client) Models(ctx context.Context) (map[string][]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var payload struct {
		Categories map[string][]string `json:"categories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode model catalog: %w", err)
	}
	return payload.Categories, nil
}

// Health pings the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return checkStatus(resp)
}

func (c *Client) post(ctx context.Context, path string, body *bytes.Buffer, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.do(req)
}

// do executes the request, translating transport failures into the
// client's error taxonomy: deadline hits become ErrTimeout, everything
// else a ConnectionError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, &ConnectionError{Err: err}
	}
	return resp, nil
}

// checkStatus turns a non-2xx response into a SubmissionError, using
// the server's own error text when the body carries one.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := ""
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			if eb.Error != "" {
				msg = eb.Error
			} else if eb.Detail != "" {
				msg = eb.Detail
			}
		}
	}
	return &SubmissionError{StatusCode: resp.StatusCode, Message: msg}
}

// multipartBody assembles the form: the file part plus any extra fields.
func multipartBody(filename string, r io.Reader, fields map[string]string) (*bytes.Buffer, string, error) {
	buf := new(bytes.Buffer)
	w := multipart.NewWriter(buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("copy file into form: %w", err)
	}
	for key, value := range fields {
		if err := w.WriteField(key, value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
