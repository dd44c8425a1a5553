// Package tracker tracks reachability of the configured rendezvous sources.
// Pure bookkeeping: no negotiation logic lives here.
package tracker

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrUnknownTracker is returned for a connect event on an announce URL that
// was never configured. This is a config/programmer error, surfaced
// distinctly from normal tracker warnings so it fails loudly in development.
var ErrUnknownTracker = errors.New("tracker not in configured source list")

// Tracker is the reachability record for one rendezvous source
type Tracker struct {
	AnnounceURL string `json:"announce_url"`
	Reachable   bool   `json:"reachable"`
}

// Registry holds one Tracker per announce URL ever seen. Entries are created
// on the first successful connection and never removed; later events only
// flip Reachable.
type Registry struct {
	mu         sync.RWMutex
	configured map[string]bool
	trackers   map[string]*Tracker

	// Anomalies counts connect events for unconfigured URLs
	Anomalies atomic.Int64
}

// NewRegistry creates a registry over the configured announce URL list
func NewRegistry(sources []string) *Registry {
	configured := make(map[string]bool, len(sources))
	for _, url := range sources {
		configured[url] = true
	}
	return &Registry{
		configured: configured,
		trackers:   make(map[string]*Tracker),
	}
}

// OnTrackerConnected marks the tracker reachable, creating the entry on
// first contact. The last connection event wins.
func (r *Registry) OnTrackerConnected(announceURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.configured[announceURL] {
		r.Anomalies.Add(1)
		slog.Warn("Connect event for unconfigured tracker", "url", announceURL)
		return fmt.Errorf("%w: %s", ErrUnknownTracker, announceURL)
	}

	r.trackers[announceURL] = &Tracker{
		AnnounceURL: announceURL,
		Reachable:   true,
	}
	slog.Info("Tracker reachable", "url", announceURL)
	return nil
}

// OnTrackerClosed flips the tracker unreachable. Unknown URLs are ignored:
// a close for a tracker we never saw connect carries no information.
func (r *Registry) OnTrackerClosed(announceURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.trackers[announceURL]; ok {
		t.Reachable = false
		slog.Info("Tracker unreachable", "url", announceURL)
	}
}

// OnTrackerWarning is advisory only: logged, no state change, never panics
func (r *Registry) OnTrackerWarning(err error) {
	if err == nil {
		return
	}
	slog.Warn("Tracker warning", "error", err)
}

// Snapshot returns a copy of every tracker entry
func (r *Registry) Snapshot() []Tracker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tracker, 0, len(r.trackers))
	for _, t := range r.trackers {
		out = append(out, *t)
	}
	return out
}

// ReachableCount returns the number of currently reachable trackers
func (r *Registry) ReachableCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, t := range r.trackers {
		if t.Reachable {
			n++
		}
	}
	return n
}

// Configured reports whether the URL is in the configured source list
func (r *Registry) Configured(announceURL string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configured[announceURL]
}
