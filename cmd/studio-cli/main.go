// Command studio-cli runs processing jobs from the terminal: one-shot
// (validate the image, submit it to the backend, follow the progress
// channel, save the result) or watch mode, where every image dropped
// into a directory is processed automatically.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/imagestudio/studio-go/internal/backend"
	"github.com/imagestudio/studio-go/internal/config"
	"github.com/imagestudio/studio-go/internal/models"
	"github.com/imagestudio/studio-go/internal/preview"
	"github.com/imagestudio/studio-go/internal/validator"
	"github.com/imagestudio/studio-go/internal/watcher"
	"github.com/imagestudio/studio-go/internal/workflow"
)

type options struct {
	cfg         *config.Config
	client      *backend.Client
	validator   *validator.Validator
	operation   models.Operation
	model       string
	sync        bool
	dest        string
	outscale    int
	denoise     float64
	faceEnhance bool
	compare     bool
}

func main() {
	var (
		filePath    = flag.String("file", "", "image to process (png, jpg, webp)")
		watchDir    = flag.String("watch", "", "process every image dropped into this directory")
		operation   = flag.String("operation", "enhancement", "background_removal, upscaling, enhancement or generation")
		model       = flag.String("model", "", "model variant; empty picks the operation default")
		syncMode    = flag.Bool("sync", false, "use blocking submission instead of the progress channel")
		outDir      = flag.String("out", "", "destination directory; defaults to the configured downloads path")
		outscale    = flag.Int("outscale", 0, "upscaling factor")
		denoise     = flag.Float64("denoise", 0, "denoise strength")
		faceEnhance = flag.Bool("face-enhance", false, "run the face enhancement pass")
		compare     = flag.Bool("compare", false, "write a side-by-side before/after image next to the result")
	)
	flag.Parse()

	if *filePath == "" && *watchDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	op := models.Operation(*operation)
	if !op.Valid() {
		log.Fatalf("Unknown operation %q", *operation)
	}

	dest := *outDir
	if dest == "" {
		dest = cfg.Downloads.Path
	}

	opts := &options{
		cfg:         cfg,
		client:      backend.New(cfg.Backend.BaseURL),
		validator:   validator.NewAdvanced(cfg.Upload.MaxSizeMBAdv, cfg.Upload.MaxDimension, cfg.Upload.MinDimension),
		operation:   op,
		model:       *model,
		sync:        *syncMode,
		dest:        dest,
		outscale:    *outscale,
		denoise:     *denoise,
		faceEnhance: *faceEnhance,
		compare:     *compare,
	}

	if *watchDir != "" {
		runWatch(*watchDir, opts)
		return
	}

	if err := runJob(*filePath, opts); err != nil {
		log.Fatalf("%v", err)
	}
}

// runWatch processes images dropped into dir until interrupted.
func runWatch(dir string, opts *options) {
	w := watcher.New(dir, submitterFunc(func(path string) error {
		return runJob(path, opts)
	}))
	if err := w.Start(); err != nil {
		log.Fatalf("Could not start watcher: %v", err)
	}
	defer w.Stop()

	log.Printf("Watching %s; drop images to process them (Ctrl-C to stop)", dir)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

type submitterFunc func(string) error

func (f submitterFunc) SubmitFile(path string) error { return f(path) }

// runJob runs one file through the full workflow: validate, submit,
// await the terminal state, download the result.
func runJob(filePath string, opts *options) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("could not open %s: %w", filePath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("could not stat %s: %w", filePath, err)
	}

	file, err := opts.validator.Validate(filepath.Base(filePath), info.Size(), f)
	if err != nil {
		if rej, ok := validator.AsRejection(err); ok {
			return fmt.Errorf("file rejected (%s): %s", rej.Reason, rej.Message)
		}
		return fmt.Errorf("file validation failed: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("could not rewind %s: %w", filePath, err)
	}

	session := workflow.NewSession(opts.client, opts.cfg.Backend.WebSocketURL, opts.cfg.Backend.MaxReconnects, func(status models.ProcessingStatus) {
		if status.Message != "" {
			fmt.Printf("\r%-60s [%3.0f%%]", status.Message, status.Progress)
		}
	})

	if err := session.SelectFile(file); err != nil {
		return err
	}
	if err := session.SelectOperation(opts.operation, opts.model); err != nil {
		return err
	}
	session.Tune(func(sel *models.Selection) {
		if opts.outscale > 0 {
			sel.Outscale = opts.outscale
		}
		if opts.denoise > 0 {
			sel.DenoiseStrength = opts.denoise
		}
		sel.FaceEnhance = opts.faceEnhance
	})

	// The submission deadline covers the request itself; give the
	// overall job room for the processing to run to completion.
	ctx, cancel := context.WithTimeout(context.Background(), opts.cfg.SubmitTimeout(string(opts.operation))+5*time.Minute)
	defer cancel()

	var result *models.JobResult
	if opts.sync {
		result, err = session.SubmitSync(ctx, f)
		if err != nil {
			return fmt.Errorf("processing failed: %w", err)
		}
	} else {
		sub, err := session.SubmitAsync(ctx, f)
		if err != nil {
			return fmt.Errorf("submission failed: %w", err)
		}
		fmt.Printf("Submitted task %s\n", sub.TaskID)

		final := session.Await(ctx)
		fmt.Println()
		if final.State == models.StateError {
			return fmt.Errorf("processing failed: %s", final.Error)
		}
		result = &models.JobResult{
			Status:         "success",
			OutputPath:     final.ProcessedURL,
			OutputFilename: filepath.Base(strings.TrimSuffix(final.ProcessedURL, "/")),
		}
	}

	saved, err := opts.client.Download(ctx, result, opts.dest)
	if err != nil {
		return fmt.Errorf("could not download result: %w", err)
	}
	fmt.Printf("Saved %s\n", saved)

	if opts.compare {
		writeComparison(filePath, saved)
	}
	return nil
}

// writeComparison prints the dimension change and writes a side-by-side
// preview next to the downloaded result. Failures here are not fatal:
// the processed file is already on disk.
func writeComparison(originalPath, processedPath string) {
	original, err := os.ReadFile(originalPath)
	if err != nil {
		log.Printf("Could not read original for comparison: %v", err)
		return
	}
	processed, err := os.ReadFile(processedPath)
	if err != nil {
		log.Printf("Could not read result for comparison: %v", err)
		return
	}

	cmp, err := preview.Compare(original, processed)
	if err != nil {
		log.Printf("Could not compare images: %v", err)
		return
	}
	fmt.Printf("Original %dx%d -> processed %dx%d", cmp.Original.Width, cmp.Original.Height, cmp.Processed.Width, cmp.Processed.Height)
	if cmp.RatioLabel != "" {
		fmt.Printf(" (%s)", cmp.RatioLabel)
	}
	fmt.Println()

	img, err := preview.SideBySide(original, processed)
	if err != nil {
		log.Printf("Could not build side-by-side preview: %v", err)
		return
	}
	previewPath := strings.TrimSuffix(processedPath, filepath.Ext(processedPath)) + "_compare.jpg"
	if err := os.WriteFile(previewPath, img, 0644); err != nil {
		log.Printf("Could not write preview: %v", err)
		return
	}
	fmt.Printf("Wrote comparison preview %s\n", previewPath)
}
