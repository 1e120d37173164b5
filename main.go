package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imagestudio/studio-go/internal/api"
	"github.com/imagestudio/studio-go/internal/core"
	"github.com/imagestudio/studio-go/internal/jobs"
	"github.com/imagestudio/studio-go/internal/watcher"
)

var version = "dev" // overridden at build time via -ldflags

func main() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()
	app.Version = version

	// Verify the processing backend is reachable before accepting work.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := app.Backend().Health(ctx); err != nil {
		log.Printf("Warning: processing backend is not reachable yet: %v", err)
	}
	cancel()

	// Start the periodic history cleanup
	jobs.StartJobs(app)

	// Setup the API server
	server := api.NewServer(app)

	// Watch the drop folder, if one is configured. Images copied into it
	// are submitted automatically.
	if path := app.Config().Watch.Path; path != "" {
		w := watcher.New(path, server)
		if err := w.Start(); err != nil {
			log.Printf("Warning: could not start drop folder watcher: %v", err)
		} else {
			defer w.Stop()
		}
	}

	addr := fmt.Sprintf(":%d", app.Config().Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		log.Printf("Starting studio gateway on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a context with a timeout to allow existing connections to finish.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Attempt a graceful shutdown.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting.")
}
