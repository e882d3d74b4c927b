package sentinel

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *recorder) onChange(_ context.Context, paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, p := range r.all() {
			if p == path {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("no change reported for %s; got %v", path, r.all())
}

func isTS(name string) bool { return strings.HasSuffix(name, ".ts") }

func skipModules(name string) bool { return name == "node_modules" || strings.HasPrefix(name, ".") }

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{OnChange: func(context.Context, []string) {}}); err == nil {
		t.Error("expected error for missing roots")
	}
	if _, err := New(Config{Roots: []string{"."}}); err == nil {
		t.Error("expected error for missing change func")
	}
	s, err := New(Config{Roots: []string{"."}, OnChange: func(context.Context, []string) {}})
	if err != nil {
		t.Fatal(err)
	}
	if s.cfg.Debounce != debounceDefault || s.cfg.PollInterval != pollDefault {
		t.Errorf("defaults not applied: %+v", s.cfg)
	}
}

func startSentinel(t *testing.T, cfg Config) context.CancelFunc {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// let the watcher register directories
	time.Sleep(150 * time.Millisecond)
	return cancel
}

func TestSentinel_FSNotifyReportsEdits(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "agents")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	startSentinel(t, Config{
		Roots:    []string{root},
		IsScript: isTS,
		SkipDir:  skipModules,
		OnChange: rec.onChange,
		Debounce: 50 * time.Millisecond,
	})

	script := filepath.Join(nested, "tool.ts")
	if err := os.WriteFile(script, []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, script)

	for _, p := range rec.all() {
		if !isTS(p) {
			t.Errorf("non-script reported: %s", p)
		}
	}
}

func TestSentinel_IgnoresNonScripts(t *testing.T) {
	root := t.TempDir()
	rec := &recorder{}
	startSentinel(t, Config{
		Roots:    []string{root},
		IsScript: isTS,
		OnChange: rec.onChange,
		Debounce: 30 * time.Millisecond,
	})

	_ = os.WriteFile(filepath.Join(root, "notes.md"), []byte("x"), 0o644)
	marker := filepath.Join(root, "marker.ts")
	_ = os.WriteFile(marker, []byte("x"), 0o644)
	rec.waitFor(t, marker)

	for _, p := range rec.all() {
		if strings.HasSuffix(p, ".md") {
			t.Errorf("markdown file reported: %s", p)
		}
	}
}

func TestSentinel_PollDetectsNewAndModified(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "a.ts")
	if err := os.WriteFile(existing, []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "node_modules"), 0o755); err != nil {
		t.Fatal(err)
	}

	rec := &recorder{}
	startSentinel(t, Config{
		Roots:        []string{root},
		IsScript:     isTS,
		SkipDir:      skipModules,
		OnChange:     rec.onChange,
		PollMode:     true,
		PollInterval: 50 * time.Millisecond,
	})

	_ = os.WriteFile(filepath.Join(root, "node_modules", "dep.ts"), []byte("x"), 0o644)
	created := filepath.Join(root, "b.ts")
	_ = os.WriteFile(created, []byte("2"), 0o644)
	rec.waitFor(t, created)

	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(existing, later, later); err != nil {
		t.Fatal(err)
	}
	rec.waitFor(t, existing)

	for _, p := range rec.all() {
		if strings.Contains(p, "node_modules") {
			t.Errorf("skipped dir reported: %s", p)
		}
	}
}

func TestSentinel_FlushBatchesSorted(t *testing.T) {
	rec := &recorder{}
	s, err := New(Config{Roots: []string{"."}, OnChange: rec.onChange, Debounce: time.Hour})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	s.queue(ctx, "b.ts")
	s.queue(ctx, "a.ts")
	s.queue(ctx, "b.ts")
	s.stopTimer()
	s.flush(ctx)

	if len(rec.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(rec.batches))
	}
	if got := strings.Join(rec.batches[0], ","); got != "a.ts,b.ts" {
		t.Errorf("batch = %s", got)
	}

	// nothing pending: no call
	s.flush(ctx)
	if len(rec.batches) != 1 {
		t.Error("empty flush should not call OnChange")
	}
}
