package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/imagestudio/studio-go/internal/models"
)

// UpdateFunc receives every status change, including the terminal one.
type UpdateFunc func(models.ProcessingStatus)

// Tracker follows one task's progress channel until a terminal state is
// reached. Exactly one tracker may be live per workflow session; the
// session closes the previous tracker before opening a new job.
type Tracker struct {
	taskID        string
	url           string // full ws URL, e.g. ws://host/ws/{task_id}
	maxReconnects int
	onUpdate      UpdateFunc

	mu     sync.Mutex
	status models.ProcessingStatus
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

// NewTracker prepares a tracker for the given task. wsBase is the
// backend websocket root (ws://host); the per-task path is appended.
func NewTracker(wsBase, taskID string, maxReconnects int, onUpdate UpdateFunc) *Tracker {
	if maxReconnects < 0 {
		maxReconnects = 0
	}
	return &Tracker{
		taskID:        taskID,
		url:           fmt.Sprintf("%s/ws/%s", wsBase, taskID),
		maxReconnects: maxReconnects,
		onUpdate:      onUpdate,
		status: models.ProcessingStatus{
			State:   models.StateProcessing,
			TaskID:  taskID,
			Message: "Waiting for processing updates...",
		},
		done: make(chan struct{}),
	}
}

// Status returns a copy of the current status record.
func (t *Tracker) Status() models.ProcessingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Done is closed once the tracker has resolved a terminal state or was
// closed explicitly.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Run dials the progress channel and pumps frames through Apply until a
// terminal state arrives, the context is cancelled, or the reconnect
// budget runs out. It returns the final status.
func (t *Tracker) Run(ctx context.Context) models.ProcessingStatus {
	defer t.finish()

	attempts := 0
	for {
		if ctx.Err() != nil {
			return t.Status()
		}

		err := t.pump(ctx)
		if err == nil || t.Status().State.Terminal() {
			return t.Status()
		}

		attempts++
		log.Printf("Progress channel for task %s dropped (attempt %d/%d): %v",
			t.taskID, attempts, t.maxReconnects, err)
		if attempts > t.maxReconnects {
			// Once the reconnect budget is spent the job is marked
			// failed so the workflow never sticks in "processing"
			// forever.
			t.apply(models.ProgressEvent{
				Status: "error",
				Error:  "lost connection to processing server",
			})
			return t.Status()
		}

		select {
		case <-ctx.Done():
			return t.Status()
		case <-time.After(time.Second * time.Duration(attempts)):
		}
	}
}

// pump reads frames from one connection until it breaks or a terminal
// frame arrives. A nil return means terminal or orderly shutdown.
func (t *Tracker) pump(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return fmt.Errorf("dial progress channel: %w", err)
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		conn.Close()
		return nil
	}
	t.conn = conn
	t.mu.Unlock()
	defer conn.Close()

	// Drop the connection when the context is cancelled so ReadMessage
	// unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.Status().State.Terminal() || t.isClosed() {
				return nil
			}
			return fmt.Errorf("read progress frame: %w", err)
		}

		var event models.ProgressEvent
		if err := json.Unmarshal(data, &event); err != nil {
			// Malformed frames are logged and skipped rather than
			// failing the whole job.
			log.Printf("Skipping malformed progress frame for task %s: %v", t.taskID, err)
			continue
		}

		t.apply(event)
		if t.Status().State.Terminal() {
			return nil
		}
	}
}

func (t *Tracker) apply(event models.ProgressEvent) {
	t.mu.Lock()
	t.status = Apply(t.status, event)
	updated := t.status
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(updated)
	}
}

// Close releases the channel handle. Closing before a terminal frame
// leaves the last observed status in place; Run will return it.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (t *Tracker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Tracker) finish() {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
	}
	select {
	case <-t.done:
	default:
		close(t.done)
	}
	t.mu.Unlock()
}
