// Package reload watches the configuration file and the environments root
// for changes and drives live reloads.
package reload

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the watcher.
type WatcherConfig struct {
	// Path is the file or directory to watch. For a directory every
	// immediate subdirectory is tracked separately and reported by name.
	Path string

	// PollInterval is how often to check for changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes the type of change event.
type EventType string

const (
	// EventModified indicates the watched path changed.
	EventModified EventType = "modified"
)

// Event represents a change notification.
type Event struct {
	Type EventType
	Path string

	// Names lists the subdirectories that changed, appeared or vanished
	// when Path is a directory. It is empty for a watched file.
	Names []string
}

// fingerprint summarizes a file or directory tree.
type fingerprint struct {
	modTime time.Time
	files   int
	size    int64
}

// Watcher polls a file or a directory tree for modifications.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Safe to call multiple times; only the first call
// starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last := w.snapshot()
	var (
		pending    bool
		pendingSet = make(map[string]struct{})
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.snapshot()
			if current == nil {
				continue
			}
			if last != nil {
				for _, name := range diff(last, current) {
					pending = true
					if name != "" {
						pendingSet[name] = struct{}{}
					}
				}
			}
			last = current
			if !pending {
				continue
			}

			names := make([]string, 0, len(pendingSet))
			for name := range pendingSet {
				names = append(names, name)
			}
			slices.Sort(names)
			select {
			case w.events <- Event{Type: EventModified, Path: w.cfg.Path, Names: names}:
				pending = false
				clear(pendingSet)
			default:
				// Consumer is busy; changes are merged into the next event.
			}
		}
	}
}

// snapshot fingerprints the watched path. A file is recorded under the
// empty name. It returns nil when the path does not exist.
func (w *Watcher) snapshot() map[string]fingerprint {
	info, err := os.Stat(w.cfg.Path)
	if err != nil {
		return nil
	}
	if !info.IsDir() {
		return map[string]fingerprint{"": {modTime: info.ModTime(), files: 1, size: info.Size()}}
	}

	entries, err := os.ReadDir(w.cfg.Path)
	if err != nil {
		return nil
	}
	out := make(map[string]fingerprint, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		out[entry.Name()] = treeFingerprint(filepath.Join(w.cfg.Path, entry.Name()))
	}
	return out
}

func treeFingerprint(root string) fingerprint {
	var fp fingerprint
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(fp.modTime) {
			fp.modTime = info.ModTime()
		}
		if !d.IsDir() {
			fp.files++
			fp.size += info.Size()
		}
		return nil
	})
	return fp
}

// diff returns the names whose fingerprint changed between two snapshots.
func diff(prev, cur map[string]fingerprint) []string {
	var changed []string
	for name, fp := range cur {
		if old, ok := prev[name]; !ok || old != fp {
			changed = append(changed, name)
		}
	}
	for name := range prev {
		if _, ok := cur[name]; !ok {
			changed = append(changed, name)
		}
	}
	return changed
}
