// Package events carries job progress updates to whoever is listening.
package events

import (
	"sync"

	"github.com/vrsandeep/transdoc-go/internal/models"
)

// Notifier receives progress updates. Implementations must not block the
// caller for long; the pipeline notifies from its worker goroutines.
type Notifier interface {
	Notify(update models.ProgressUpdate)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(update models.ProgressUpdate)

func (f NotifierFunc) Notify(update models.ProgressUpdate) { f(update) }

// Multi fans every update out to each of its notifiers in order.
type Multi []Notifier

func (m Multi) Notify(update models.ProgressUpdate) {
	for _, n := range m {
		if n != nil {
			n.Notify(update)
		}
	}
}

// Nop drops every update.
var Nop Notifier = NotifierFunc(func(models.ProgressUpdate) {})

// Recorder keeps every update it sees. Used by tests and the CLI.
type Recorder struct {
	mu      sync.Mutex
	updates []models.ProgressUpdate
}

func (r *Recorder) Notify(update models.ProgressUpdate) {
	r.mu.Lock()
	r.updates = append(r.updates, update)
	r.mu.Unlock()
}

// Updates returns a copy of the recorded updates.
func (r *Recorder) Updates() []models.ProgressUpdate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProgressUpdate, len(r.updates))
	copy(out, r.updates)
	return out
}

// ForJob returns the recorded updates of one job.
func (r *Recorder) ForJob(jobID int64) []models.ProgressUpdate {
	var out []models.ProgressUpdate
	for _, u := range r.Updates() {
		if u.JobID == jobID {
			out = append(out, u)
		}
	}
	return out
}
