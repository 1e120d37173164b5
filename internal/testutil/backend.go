// A shared mock of the external AI backend, which simplifies all client
// and gateway tests: sync and async submission, the per-task websocket
// channel, and the download endpoint.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// MockBackend drives scripted responses for one task.
type MockBackend struct {
	Server *httptest.Server

	// TaskID is handed out by the async submission endpoint.
	TaskID string
	// Frames are sent on the websocket channel for TaskID, in order.
	Frames []string
	// Artifacts maps output filenames to their binary contents for the
	// download endpoint.
	Artifacts map[string][]byte
	// SyncResult is the JSON body returned by /api/v1/process.
	SyncResult string
}

// NewMockBackend starts the mock with sensible defaults; callers adjust
// fields before issuing requests.
func NewMockBackend(t *testing.T) *MockBackend {
	t.Helper()
	mb := &MockBackend{
		TaskID:     "abc123",
		Artifacts:  make(map[string][]byte),
		SyncResult: `{"status":"success","result":{"output_path":"processed/abc.png","output_filename":"abc.png"}}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/api/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"categories": map[string][]string{
				"background_removal": {"rembg"},
				"upscaling":          {"realesrgan_2x", "realesrgan_4x"},
				"enhancement":        {"gfpgan"},
				"generation":         {"stable_diffusion"},
			},
		})
	})
	mux.HandleFunc("/api/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"received"}`))
	})
	mux.HandleFunc("/api/v1/process", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(mb.SyncResult))
	})
	mux.HandleFunc("/api/v1/enhance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"task_id":      mb.TaskID,
			"original_url": "/uploads/" + mb.TaskID + "_input.png",
		})
	})
	mux.HandleFunc("/api/v1/download/", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/v1/download/")
		data, ok := mb.Artifacts[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	})
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range mb.Frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Give the client a moment to drain before closing.
		time.Sleep(50 * time.Millisecond)
	})

	mb.Server = httptest.NewServer(mux)
	t.Cleanup(mb.Server.Close)
	return mb
}

// URL returns the backend's HTTP base URL.
func (mb *MockBackend) URL() string { return mb.Server.URL }

// WsURL returns the backend's websocket base URL.
func (mb *MockBackend) WsURL() string {
	return "ws" + strings.TrimPrefix(mb.Server.URL, "http")
}
