package server

import (
	"context"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// skipDirs are never watched.
var skipDirs = map[string]bool{
	"node_modules": true,
	"elm-stuff":    true,
	".git":         true,
}

// Watcher reports source changes under a directory tree, coalescing bursts
// of events into one notification.
type Watcher struct {
	root     string
	debounce time.Duration
	ignore   func(path string) bool
	fsw      *fsnotify.Watcher
	log      zerolog.Logger
}

// NewWatcher watches root recursively. ignore filters individual paths; it
// may be nil.
func NewWatcher(root string, debounce time.Duration, ignore func(string) bool, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if ignore == nil {
		ignore = func(string) bool { return false }
	}
	w := &Watcher{root: root, debounce: debounce, ignore: ignore, fsw: fsw, log: log}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && (skipDirs[d.Name()] || w.ignore(p)) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Run calls onChange after every debounced burst of relevant events until
// ctx is cancelled. onChange never runs concurrently with itself.
func (w *Watcher) Run(ctx context.Context, onChange func()) {
	var (
		mu      sync.Mutex
		timer   *time.Timer
		running sync.Mutex
	)
	fire := func() {
		running.Lock()
		defer running.Unlock()
		if ctx.Err() == nil {
			onChange()
		}
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if err := w.addTree(ev.Name); err != nil {
					w.log.Debug().Err(err).Str("path", ev.Name).Msg("[watch] add")
				}
			}
			w.log.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("[watch] change")
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, fire)
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("[watch] error")
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return false
	}
	for dir := filepath.Dir(rel); dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if skipDirs[filepath.Base(dir)] {
			return false
		}
	}
	return !w.ignore(ev.Name)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
