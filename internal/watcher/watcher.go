// This file implements a file system watcher for the drop folder.
// Images copied into the folder are picked up via OS-level file system
// events and submitted to the processing backend automatically.

package watcher

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/imagestudio/studio-go/internal/validator"
)

// Submitter receives files detected in the drop folder. The gateway
// implements it by running the async submission flow for each path.
type Submitter interface {
	SubmitFile(path string) error
}

// Service watches the drop folder and submits images that appear in it.
type Service struct {
	root          string
	submitter     Submitter
	watcher       *fsnotify.Watcher
	pending       map[string]bool
	mu            sync.Mutex
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
}

// New creates a drop-folder watcher rooted at path.
func New(path string, submitter Submitter) *Service {
	return &Service{
		root:          path,
		submitter:     submitter,
		pending:       make(map[string]bool),
		debounceDelay: 2 * time.Second, // wait for the copy to finish before submitting
		stopChan:      make(chan struct{}),
	}
}

// SetDebounce overrides the settle delay. Used by tests to keep them fast.
func (s *Service) SetDebounce(d time.Duration) {
	s.mu.Lock()
	s.debounceDelay = d
	s.mu.Unlock()
}

// Start begins watching the drop folder and its subdirectories.
func (s *Service) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	s.watcher = watcher

	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return err
	}

	log.Printf("Drop folder watcher started: %s", s.root)

	go s.processEvents()
	return nil
}

// Stop stops the watcher.
func (s *Service) Stop() error {
	close(s.stopChan)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Service) processEvents() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Drop folder watcher error: %v", err)

		case <-s.stopChan:
			return
		}
	}
}

func (s *Service) handleEvent(event fsnotify.Event) {
	// Chmod fires when files are merely opened or browsed; ignore it.
	if event.Op == fsnotify.Chmod {
		return
	}

	// Only creation and writes matter. A removed file has nothing left
	// to submit.
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	// New subdirectories get added to the watch list so images dropped
	// inside them are seen too.
	if info.IsDir() {
		if event.Op&fsnotify.Create == fsnotify.Create {
			s.watcher.Add(event.Name)
		}
		return
	}

	if !validator.SupportedType(event.Name) {
		return
	}

	s.mu.Lock()
	s.pending[event.Name] = true
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.debounceDelay, s.flush)
	s.mu.Unlock()
}

// flush submits every settled file and clears the pending set.
func (s *Service) flush() {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(s.pending))
	for path := range s.pending {
		paths = append(paths, path)
	}
	s.pending = make(map[string]bool)
	s.mu.Unlock()

	log.Printf("Drop folder settled, submitting %d file(s)", len(paths))

	go func() {
		for _, path := range paths {
			if err := s.submitter.SubmitFile(path); err != nil {
				log.Printf("Could not submit %s: %v", path, err)
			}
		}
	}()
}
