package workflow

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imagestudio/studio-go/internal/backend"
	"github.com/imagestudio/studio-go/internal/models"
)

var upgrader = websocket.Upgrader{}

// mockBackend serves the async submission endpoint plus a scripted
// progress channel for the task it hands out.
func mockBackend(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/enhance", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"task_id":"abc123","original_url":"/tmp/abc.png"}`))
	})
	mux.HandleFunc("/api/v1/process", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","result":{"output_path":"processed/abc.png","output_filename":"abc.png"}}`))
	})
	mux.HandleFunc("/ws/abc123", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		time.Sleep(50 * time.Millisecond)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T, srv *httptest.Server) *Session {
	t.Helper()
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")
	return NewSession(backend.New(srv.URL), wsBase, 0, nil)
}

func payload() *bytes.Reader {
	return bytes.NewReader([]byte("\x89PNG\r\n\x1a\ntiny"))
}

func TestSessionAsyncRoundTrip(t *testing.T) {
	srv := mockBackend(t, []string{
		`{"progress": 50}`,
		`{"status": "completed", "result_url": "/out/abc_result.png"}`,
	})
	sess := newTestSession(t, srv)

	if err := sess.SelectFile(testFile); err != nil {
		t.Fatalf("SelectFile failed: %v", err)
	}
	if err := sess.SelectOperation(models.OpBackgroundRemoval, ""); err != nil {
		t.Fatalf("SelectOperation failed: %v", err)
	}

	sub, err := sess.SubmitAsync(context.Background(), payload())
	if err != nil {
		t.Fatalf("SubmitAsync failed: %v", err)
	}
	if sub.TaskID != "abc123" {
		t.Errorf("Expected task id abc123, got %q", sub.TaskID)
	}

	final := sess.Await(context.Background())
	if final.State != models.StateCompleted {
		t.Fatalf("Expected completed, got %s (%s)", final.State, final.Message)
	}
	if final.ProcessedURL != "/out/abc_result.png" {
		t.Errorf("Expected result url, got %q", final.ProcessedURL)
	}
}

func TestSessionSyncMode(t *testing.T) {
	srv := mockBackend(t, nil)
	sess := newTestSession(t, srv)

	sess.SelectFile(testFile)
	sess.SelectOperation(models.OpUpscaling, "realesrgan_4x")

	result, err := sess.SubmitSync(context.Background(), payload())
	if err != nil {
		t.Fatalf("SubmitSync failed: %v", err)
	}
	if result.OutputFilename != "abc.png" {
		t.Errorf("Expected output filename abc.png, got %q", result.OutputFilename)
	}
	if got := sess.Status().State; got != models.StateCompleted {
		t.Errorf("Expected completed status, got %s", got)
	}
}

func TestSessionSubmitRequiresProcessingView(t *testing.T) {
	srv := mockBackend(t, nil)
	sess := newTestSession(t, srv)

	if _, err := sess.SubmitAsync(context.Background(), payload()); err != ErrWrongView {
		t.Errorf("Expected ErrWrongView before any selection, got %v", err)
	}

	sess.SelectFile(testFile)
	if _, err := sess.SubmitSync(context.Background(), payload()); err != ErrWrongView {
		t.Errorf("Expected ErrWrongView from options view, got %v", err)
	}
}

func TestSessionTune(t *testing.T) {
	srv := mockBackend(t, nil)
	sess := newTestSession(t, srv)

	// Before an operation is selected there is nothing to tune.
	sess.Tune(func(sel *models.Selection) { sel.Outscale = 4 })

	sess.SelectFile(testFile)
	sess.SelectOperation(models.OpUpscaling, "")
	sess.Tune(func(sel *models.Selection) {
		sel.Outscale = 4
		sel.FaceEnhance = true
	})

	state := sess.State()
	if state.Selection == nil || state.Selection.Outscale != 4 || !state.Selection.FaceEnhance {
		t.Errorf("Tune did not apply: %+v", state.Selection)
	}
}

func TestSessionBackAndReset(t *testing.T) {
	srv := mockBackend(t, []string{`{"progress": 10}`})
	sess := newTestSession(t, srv)

	sess.SelectFile(testFile)
	sess.SelectOperation(models.OpEnhancement, "")

	if err := sess.Back(); err != nil {
		t.Fatalf("Back failed: %v", err)
	}
	state := sess.State()
	if state.View != ViewOptions || state.File != testFile || state.Selection != nil {
		t.Errorf("Back left unexpected state: %+v", state)
	}

	sess.Reset()
	state = sess.State()
	if state.View != ViewUpload || state.File != nil {
		t.Errorf("Reset left unexpected state: %+v", state)
	}
	if got := sess.Status().State; got != models.StateIdle {
		t.Errorf("Expected idle status after reset, got %s", got)
	}
}

func TestSessionResetClosesLiveChannel(t *testing.T) {
	// Server holds the channel open; reset must release it and Await
	// must return promptly.
	srvSlow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/enhance":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"task_id":"abc123","original_url":"/tmp/abc.png"}`))
		case strings.HasPrefix(r.URL.Path, "/ws/"):
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			time.Sleep(3 * time.Second)
		}
	}))
	defer srvSlow.Close()

	sess := newTestSession(t, srvSlow)
	sess.SelectFile(testFile)
	sess.SelectOperation(models.OpUpscaling, "")
	if _, err := sess.SubmitAsync(context.Background(), payload()); err != nil {
		t.Fatalf("SubmitAsync failed: %v", err)
	}

	done := make(chan models.ProcessingStatus, 1)
	go func() { done <- sess.Await(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	sess.Reset()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Await did not return after Reset closed the channel")
	}
}

func TestSessionLogicalFailureDoesNotComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"error","error":"unsupported format"}`))
	}))
	defer srv.Close()

	sess := newTestSession(t, srv)
	sess.SelectFile(testFile)
	sess.SelectOperation(models.OpUpscaling, "")

	_, err := sess.SubmitSync(context.Background(), payload())
	if err == nil {
		t.Fatal("Expected a logical failure")
	}
	if !strings.Contains(err.Error(), "unsupported format") {
		t.Errorf("Expected server error text, got %q", err.Error())
	}
	if got := sess.Status().State; got != models.StateError {
		t.Errorf("Expected error status, got %s", got)
	}
}

func TestSessionStatusKeepsOriginalURL(t *testing.T) {
	srv := mockBackend(t, []string{
		`{"progress": 50}`,
		`{"status": "completed", "result_url": "/out/abc_result.png"}`,
	})
	sess := newTestSession(t, srv)

	sess.SelectFile(testFile)
	sess.SelectOperation(models.OpEnhancement, "gfpgan")
	if _, err := sess.SubmitAsync(context.Background(), payload()); err != nil {
		t.Fatalf("SubmitAsync failed: %v", err)
	}

	// Progress frames never carry the original-image URL; the value from
	// the submission must survive while the tracker is live.
	if got := sess.Status().OriginalURL; got != "/tmp/abc.png" {
		t.Errorf("Expected original url from submission, got %q", got)
	}

	final := sess.Await(context.Background())
	if final.State != models.StateCompleted {
		t.Fatalf("Expected completed state, got %s", final.State)
	}
	if final.OriginalURL != "/tmp/abc.png" {
		t.Errorf("Expected terminal status to keep the original url, got %q", final.OriginalURL)
	}
}
