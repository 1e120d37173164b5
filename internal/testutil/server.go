// A shared test server setup utility, which simplifies all API tests.

package testutil

import (
	"testing"

	"github.com/imagestudio/studio-go/internal/api"
	"github.com/imagestudio/studio-go/internal/backend"
	"github.com/imagestudio/studio-go/internal/config"
	"github.com/imagestudio/studio-go/internal/core"
	"github.com/imagestudio/studio-go/internal/websocket"
)

// SetupTestApp builds a core.App wired to a mock backend and an
// in-memory history database.
func SetupTestApp(t *testing.T, mb *MockBackend) *core.App {
	t.Helper()
	db := SetupTestDB(t)

	cfg := &config.Config{}
	cfg.Backend.BaseURL = mb.URL()
	cfg.Backend.WebSocketURL = mb.WsURL()
	cfg.Backend.SubmitTimeout = 5
	cfg.Backend.ProcessTimeout = 5
	cfg.Upload.MaxSizeMB = 10
	cfg.Upload.MaxSizeMBAdv = 50
	cfg.Upload.MaxDimension = 8192
	cfg.Upload.MinDimension = 1
	cfg.Downloads.Path = t.TempDir()
	cfg.History.RetentionDays = 30

	hub := websocket.NewHub()
	go hub.Run()

	return core.NewForTesting(cfg, db, hub, backend.New(mb.URL()))
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *MockBackend) {
	t.Helper()
	mb := NewMockBackend(t)
	app := SetupTestApp(t, mb)
	return api.NewServer(app), mb
}
