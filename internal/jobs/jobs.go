package jobs

import (
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/imagestudio/studio-go/internal/store"
)

// StartJobs starts the background job scheduler.
func StartJobs(app JobContext) {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	startRetentionJob(s, app)

	log.Println("Starting background job scheduler...")
	s.StartAsync()
}

// RegisterAll wires the known jobs into the manager.
func RegisterAll(jm *JobManager) {
	jm.Register("history-cleanup", runHistoryCleanup)
}

func startRetentionJob(s *gocron.Scheduler, app JobContext) {
	interval := app.Config().History.CleanupInterval
	if interval == 0 {
		log.Println("History cleanup interval is 0, scheduled cleanup is disabled.")
		return
	}

	jobId := "history-cleanup"
	log.Printf("Scheduling job: '%s' to run every %d minutes.", jobId, interval)

	_, err := s.Every(interval).Minutes().Do(func() {
		log.Println("Scheduler is triggering job:", jobId)
		// Submit the job to the manager instead of running it directly.
		// This prevents conflicts with manually triggered jobs.
		err := app.JobManager().RunJob(jobId, app)
		if err != nil {
			log.Printf("Scheduled job '%s' could not start: %v", jobId, err)
		}
	})
	if err != nil {
		log.Printf("Error scheduling '%s' job: %v", jobId, err)
	}
}

// runHistoryCleanup prunes history rows past the retention window and
// removes downloaded artifacts older than the same cutoff.
func runHistoryCleanup(ctx JobContext) {
	cfg := ctx.Config()
	retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	st := store.New(ctx.DB())
	pruned, err := st.PruneHistory(cutoff)
	if err != nil {
		log.Printf("History cleanup failed: %v", err)
		return
	}
	if pruned > 0 {
		log.Printf("Pruned %d history rows older than %s", pruned, cutoff.Format(time.RFC3339))
	}

	pruneDownloads(cfg.Downloads.Path, cutoff)
}

func pruneDownloads(dir string, cutoff time.Time) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Could not read downloads directory: %v", err)
		}
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				log.Printf("Could not remove stale download %s: %v", path, err)
			}
		}
	}
}
