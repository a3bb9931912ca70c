// Package inbox watches a drop folder and submits every file placed in it
// as a processing job.
package inbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Submitter queues a job. *pipeline.Scheduler satisfies it.
type Submitter interface {
	AddTask(title, path string, collectionID int64) (int64, error)
}

// Watcher moves dropped files into the uploads directory and submits them
// once they have stopped changing.
type Watcher struct {
	dir          string
	uploads      string
	collectionID int64
	submit       Submitter

	watcher       *fsnotify.Watcher
	mu            sync.Mutex
	timers        map[string]*time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
}

// NewWatcher creates a drop-folder watcher.
func NewWatcher(dir, uploads string, collectionID int64, submit Submitter) *Watcher {
	return &Watcher{
		dir:           dir,
		uploads:       uploads,
		collectionID:  collectionID,
		submit:        submit,
		timers:        make(map[string]*time.Timer),
		debounceDelay: 2 * time.Second, // Wait 2 seconds after the last write before submitting
		stopChan:      make(chan struct{}),
	}
}

// Start begins watching. Files already sitting in the folder are submitted
// right away.
func (w *Watcher) Start() error {
	for _, dir := range []string{w.dir, w.uploads} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher

	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() && isCandidate(e.Name()) {
				w.schedule(filepath.Join(w.dir, e.Name()))
			}
		}
	}

	log.Info().Str("dir", w.dir).Msg("inbox watcher started")
	go w.processEvents()
	return nil
}

// Stop stops the watcher. Files waiting out their debounce are left in place.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *Watcher) processEvents() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("inbox watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isCandidate(filepath.Base(event.Name)) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return
	}
	w.schedule(event.Name)
}

// schedule (re)arms the debounce timer of one path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounceDelay, func() { w.ingest(path) })
}

func (w *Watcher) ingest(path string) {
	w.mu.Lock()
	delete(w.timers, path)
	w.mu.Unlock()

	select {
	case <-w.stopChan:
		return
	default:
	}

	name := filepath.Base(path)
	dst := filepath.Join(w.uploads, uuid.NewString()+"-"+name)
	if err := os.Rename(path, dst); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("could not move dropped file")
		return
	}

	title := strings.TrimSuffix(name, filepath.Ext(name))
	id, err := w.submit.AddTask(title, dst, w.collectionID)
	if err != nil {
		log.Error().Err(err).Str("file", dst).Msg("could not submit dropped file")
		return
	}
	log.Info().Int64("job_id", id).Str("file", name).Msg("submitted dropped file")
}

// isCandidate skips hidden files and office lock files.
func isCandidate(name string) bool {
	return !strings.HasPrefix(name, ".") && !strings.HasPrefix(name, "~$")
}
