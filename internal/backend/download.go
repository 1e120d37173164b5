package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/imagestudio/studio-go/internal/models"
)

// Download fetches the processed binary named by result and writes it
// into destDir under the server-provided filename, preserving the
// output extension rather than the original upload's. It returns the
// path of the saved file.
//
// The precondition is checked before any network call: a result missing
// its output fields fails fast with models.ErrNoProcessedFile.
func (c *Client) Download(ctx context.Context, result *models.JobResult, destDir string) (string, error) {
	if result == nil || result.OutputFilename == "" || result.OutputPath == "" {
		return "", &DownloadError{Message: models.ErrNoProcessedFile.Error()}
	}

	endpoint := fmt.Sprintf("%s/api/v1/download/%s", c.baseURL, url.PathEscape(result.OutputFilename))
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.do(req)
	if err != nil {
		return "", &DownloadError{Message: "failed to fetch processed image", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &DownloadError{
			Message: fmt.Sprintf("download endpoint returned status %d for %s", resp.StatusCode, result.OutputFilename),
		}
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", &DownloadError{Message: "could not create download directory", Err: err}
	}

	// Write through a temp file so a failed transfer never leaves a
	// truncated artifact under the final name.
	dest := filepath.Join(destDir, filepath.Base(result.OutputFilename))
	tmp, err := os.CreateTemp(destDir, ".download-*")
	if err != nil {
		return "", &DownloadError{Message: "could not create temporary file", Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return "", &DownloadError{Message: "failed to save processed image", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return "", &DownloadError{Message: "failed to save processed image", Err: err}
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", &DownloadError{Message: "failed to save processed image", Err: err}
	}

	return dest, nil
}

// FetchOriginal retrieves the backend-hosted copy of the uploaded image
// (the original_url returned by async submission). Failures here are
// non-fatal for the job; callers degrade to "no preview".
func (c *Client) FetchOriginal(ctx context.Context, originalURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+originalURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("original image fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
