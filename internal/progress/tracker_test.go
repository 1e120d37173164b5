package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imagestudio/studio-go/internal/models"
)

var upgrader = websocket.Upgrader{}

// wsServer starts a test server that sends the scripted frames on
// /ws/{task_id} and then closes the connection.
func wsServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/ws/") {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		// Give the client a moment to drain before the close frame.
		time.Sleep(50 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestTrackerResolvesCompletion(t *testing.T) {
	srv := wsServer(t, []string{
		`{"progress": 50, "message": "Upscaling..."}`,
		`{"status": "completed", "result_url": "/out/abc_result.png"}`,
	})

	var updates []models.ProcessingStatus
	tracker := NewTracker(wsURL(srv), "abc123", 0, func(s models.ProcessingStatus) {
		updates = append(updates, s)
	})

	final := tracker.Run(context.Background())
	if final.State != models.StateCompleted {
		t.Fatalf("Expected completed, got %s (%s)", final.State, final.Message)
	}
	if final.ProcessedURL != "/out/abc_result.png" {
		t.Errorf("Expected result url, got %q", final.ProcessedURL)
	}
	if len(updates) != 2 {
		t.Errorf("Expected 2 update callbacks, got %d", len(updates))
	}
	if updates[0].Progress != 50 {
		t.Errorf("Expected first update at 50%%, got %v", updates[0].Progress)
	}

	select {
	case <-tracker.Done():
	default:
		t.Error("Done channel not closed after Run returned")
	}
}

func TestTrackerResolvesServerError(t *testing.T) {
	srv := wsServer(t, []string{
		`{"progress": 10}`,
		`{"status": "error", "error": "unsupported format"}`,
	})

	tracker := NewTracker(wsURL(srv), "abc123", 0, nil)
	final := tracker.Run(context.Background())

	if final.State != models.StateError {
		t.Fatalf("Expected error state, got %s", final.State)
	}
	if final.Message != "unsupported format" {
		t.Errorf("Expected server error text, got %q", final.Message)
	}
}

func TestTrackerSkipsMalformedFrames(t *testing.T) {
	srv := wsServer(t, []string{
		`not json at all`,
		`{"status": "completed"}`,
	})

	tracker := NewTracker(wsURL(srv), "abc123", 0, nil)
	final := tracker.Run(context.Background())
	if final.State != models.StateCompleted {
		t.Fatalf("Expected completed despite malformed frame, got %s", final.State)
	}
}

func TestTrackerFailsAfterReconnectBudget(t *testing.T) {
	// Server that drops every connection without a terminal frame.
	srv := wsServer(t, []string{`{"progress": 5}`})

	tracker := NewTracker(wsURL(srv), "abc123", 1, nil)
	final := tracker.Run(context.Background())

	if final.State != models.StateError {
		t.Fatalf("Expected error after reconnect budget spent, got %s", final.State)
	}
	if !strings.Contains(final.Message, "lost connection") {
		t.Errorf("Expected connection error message, got %q", final.Message)
	}
}

func TestTrackerUnreachableServer(t *testing.T) {
	tracker := NewTracker("ws://127.0.0.1:1", "abc123", 0, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final := tracker.Run(ctx)

	if final.State != models.StateError {
		t.Fatalf("Expected error for unreachable server, got %s", final.State)
	}
}

func TestTrackerCloseReleasesHandle(t *testing.T) {
	// Server keeps the connection open without terminal frames.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"progress": 5}`))
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	tracker := NewTracker(wsURL(srv), "abc123", 0, nil)
	done := make(chan models.ProcessingStatus, 1)
	go func() { done <- tracker.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	tracker.Close()

	select {
	case final := <-done:
		// Closing before a terminal frame leaves the last status as-is.
		if final.State.Terminal() {
			t.Errorf("Close should not fabricate a terminal state, got %s", final.State)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
