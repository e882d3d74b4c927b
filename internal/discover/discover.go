// Package discover finds runnable example scripts beneath the course chapters.
package discover

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/examplerun/internal/input"
	"github.com/ppiankov/examplerun/internal/task"
)

// chapterPattern matches numbered chapter directories: "01-intro", "3_agents".
var chapterPattern = regexp.MustCompile(`^[0-9]+`)

// Options controls which files become tasks.
type Options struct {
	Extensions []string    // designated source extensions, e.g. ".ts"
	Exclude    []string    // directory/file names or glob patterns to skip
	Inputs     input.Table // canned stdin resolved onto each task
	BaseDir    string      // task IDs are made relative to this directory
}

// ChapterRoots returns <base>/<chapter>/<subdir> for every numbered chapter
// directory in base. The roots are not required to exist; Discover skips the
// missing ones. Failing to read base itself is an error.
func ChapterRoots(base string, subdirs []string) ([]string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("read chapters in %s: %w", base, err)
	}

	var chapters []string
	for _, e := range entries {
		if e.IsDir() && chapterPattern.MatchString(e.Name()) {
			chapters = append(chapters, e.Name())
		}
	}
	sort.Strings(chapters)

	var roots []string
	for _, ch := range chapters {
		for _, sub := range subdirs {
			roots = append(roots, filepath.Join(base, ch, sub))
		}
	}
	return roots, nil
}

// Discover walks roots in order and returns one task per runnable file,
// lexically ordered within each root. Unreadable or missing directories are
// skipped; discovery is best-effort because not every chapter ships every
// subfolder.
func Discover(roots []string, opts Options) ([]task.Task, error) {
	seen := make(map[string]struct{})
	var tasks []task.Task

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if d == nil || d.IsDir() {
					// ignore and continue: missing root or unreadable directory
					slog.Debug("skipping unreadable directory", "path", path, "error", err)
					if d == nil {
						return nil
					}
					return filepath.SkipDir
				}
				slog.Debug("skipping unreadable entry", "path", path, "error", err)
				return nil
			}

			if path != root && opts.Excluded(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !opts.Runnable(d.Name()) {
				return nil
			}

			abs, absErr := filepath.Abs(path)
			if absErr != nil {
				abs = filepath.Clean(path)
			}
			if _, dup := seen[abs]; dup {
				return nil
			}
			seen[abs] = struct{}{}

			t := task.Task{
				Index: len(tasks),
				ID:    opts.displayID(path, abs),
				Path:  path,
			}
			if payload, ok := opts.Inputs.Lookup(path); ok {
				t.Input = payload
			}
			tasks = append(tasks, t)
			return nil
		})
		if err != nil && !errors.Is(err, filepath.SkipDir) {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	return tasks, nil
}

// Excluded reports whether an entry name is hidden or matches the exclude list.
func (o Options) Excluded(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, pattern := range o.Exclude {
		if name == pattern {
			return true
		}
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Runnable reports whether name carries a designated extension.
func (o Options) Runnable(name string) bool {
	for _, ext := range o.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func (o Options) displayID(path, abs string) string {
	if o.BaseDir == "" {
		return filepath.ToSlash(path)
	}
	base, err := filepath.Abs(o.BaseDir)
	if err != nil {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Select keeps the tasks whose ID is listed in ids, preserving discovery
// order, and renumbers their indexes from zero.
func Select(tasks []task.Task, ids []string) []task.Task {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[filepath.ToSlash(id)] = struct{}{}
	}
	var out []task.Task
	for _, t := range tasks {
		if _, ok := want[t.ID]; !ok {
			continue
		}
		t.Index = len(out)
		out = append(out, t)
	}
	return out
}
