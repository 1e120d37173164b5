package core

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/imagestudio/studio-go/internal/backend"
	"github.com/imagestudio/studio-go/internal/config"
	"github.com/imagestudio/studio-go/internal/db"
	"github.com/imagestudio/studio-go/internal/jobs"
	"github.com/imagestudio/studio-go/internal/websocket"
)

// App holds the core components of the application that are shared
// between the gateway server and the CLI.
type App struct {
	config     *config.Config
	db         *sql.DB
	hub        *websocket.Hub
	backend    *backend.Client
	jobManager *jobs.JobManager
	Version    string
}

// New sets up and returns a new App instance. It handles loading the
// configuration, initializing the history database, and running migrations.
func New() (*App, error) {
	// Load configuration from config.yml
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize the database connection
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	if err := db.RunMigrations(database); err != nil {
		// We can't proceed without a valid database schema.
		// Close the DB connection before failing.
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	hub := websocket.NewHub()
	go hub.Run()

	app := &App{
		config:  cfg,
		db:      database,
		hub:     hub,
		backend: backend.New(cfg.Backend.BaseURL),
	}
	app.jobManager = jobs.NewManager(app)
	jobs.RegisterAll(app.jobManager)

	log.Println("Core application setup complete.")
	return app, nil
}

// Close gracefully closes the application's resources, like the DB connection.
func (a *App) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) Config() *config.Config       { return a.config }
func (a *App) DB() *sql.DB                  { return a.db }
func (a *App) WsHub() *websocket.Hub        { return a.hub }
func (a *App) Backend() *backend.Client     { return a.backend }
func (a *App) JobManager() *jobs.JobManager { return a.jobManager }

// NewForTesting assembles an App from pre-built parts. Used by testutil.
func NewForTesting(cfg *config.Config, database *sql.DB, hub *websocket.Hub, client *backend.Client) *App {
	app := &App{
		config:  cfg,
		db:      database,
		hub:     hub,
		backend: client,
		Version: "test",
	}
	app.jobManager = jobs.NewManager(app)
	jobs.RegisterAll(app.jobManager)
	return app
}
