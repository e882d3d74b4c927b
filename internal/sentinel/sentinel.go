// Package sentinel watches chapter roots and reports batches of changed
// scripts so they can be rerun while an author edits them.
package sentinel

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDefault collapses the burst of events one editor save produces.
const debounceDefault = 300 * time.Millisecond

// pollDefault is the polling interval when fsnotify is unavailable.
const pollDefault = 2 * time.Second

// ChangeFunc receives the changed script paths, sorted. Calls never overlap.
type ChangeFunc func(ctx context.Context, paths []string)

// Config holds watcher configuration.
type Config struct {
	Roots        []string
	IsScript     func(name string) bool // file names worth reporting
	SkipDir      func(name string) bool // directory names never descended into
	OnChange     ChangeFunc
	Debounce     time.Duration
	PollMode     bool // fall back to polling if fsnotify unavailable
	PollInterval time.Duration
}

// Sentinel watches source trees for script edits.
type Sentinel struct {
	cfg Config

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	runMu sync.Mutex // serializes OnChange
}

// New creates a sentinel with validated configuration.
func New(cfg Config) (*Sentinel, error) {
	if len(cfg.Roots) == 0 {
		return nil, fmt.Errorf("at least one root is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change function is required")
	}
	if cfg.IsScript == nil {
		cfg.IsScript = func(string) bool { return true }
	}
	if cfg.SkipDir == nil {
		cfg.SkipDir = func(string) bool { return false }
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = debounceDefault
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = pollDefault
	}
	return &Sentinel{cfg: cfg, pending: make(map[string]struct{})}, nil
}

// Run watches until ctx is done. It falls back to polling when an fsnotify
// watcher cannot be created.
func (s *Sentinel) Run(ctx context.Context) error {
	defer s.stopTimer()

	if s.cfg.PollMode {
		return s.runPollWatcher(ctx)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("fsnotify unavailable, polling instead", "error", err)
		return s.runPollWatcher(ctx)
	}
	defer func() { _ = watcher.Close() }()
	return s.runFSWatcher(ctx, watcher)
}

func (s *Sentinel) runFSWatcher(ctx context.Context, watcher *fsnotify.Watcher) error {
	for _, root := range s.cfg.Roots {
		s.addTree(watcher, root)
	}
	slog.Info("watching for script changes", "mode", "fsnotify", "roots", len(s.cfg.Roots))

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, watcher, event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (s *Sentinel) handleEvent(ctx context.Context, watcher *fsnotify.Watcher, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if !s.cfg.SkipDir(name) {
				s.addTree(watcher, event.Name)
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if !s.cfg.IsScript(name) {
		return
	}
	// a rename reports the old name; only existing files are rerun
	if _, err := os.Stat(event.Name); err != nil {
		return
	}
	s.queue(ctx, event.Name)
}

// addTree registers dir and every non-skipped subdirectory.
func (s *Sentinel) addTree(watcher *fsnotify.Watcher, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("not watching", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && s.cfg.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			slog.Debug("watch dir failed", "path", path, "error", err)
		}
		return nil
	})
}

// queue adds path to the pending batch and restarts the debounce timer.
func (s *Sentinel) queue(ctx context.Context, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[path] = struct{}{}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.cfg.Debounce, func() { s.flush(ctx) })
}

func (s *Sentinel) flush(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	batch := make([]string, 0, len(s.pending))
	for p := range s.pending {
		batch = append(batch, p)
	}
	s.pending = make(map[string]struct{})
	s.mu.Unlock()

	if len(batch) == 0 || ctx.Err() != nil {
		return
	}
	sort.Strings(batch)
	s.cfg.OnChange(ctx, batch)
}

func (s *Sentinel) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

// runPollWatcher compares modification times on every tick.
func (s *Sentinel) runPollWatcher(ctx context.Context) error {
	slog.Info("watching for script changes", "mode", "poll", "interval", s.cfg.PollInterval)

	seen := s.scan()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current := s.scan()
			var changed []string
			for path, mod := range current {
				if prev, ok := seen[path]; !ok || !prev.Equal(mod) {
					changed = append(changed, path)
				}
			}
			seen = current
			if len(changed) > 0 {
				sort.Strings(changed)
				s.runMu.Lock()
				s.cfg.OnChange(ctx, changed)
				s.runMu.Unlock()
			}
		}
	}
}

func (s *Sentinel) scan() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, root := range s.cfg.Roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && s.cfg.SkipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if !s.cfg.IsScript(d.Name()) {
				return nil
			}
			if info, err := d.Info(); err == nil {
				out[path] = info.ModTime()
			}
			return nil
		})
	}
	return out
}
