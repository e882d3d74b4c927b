package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ExecFn is the function signature for executing a task.
// Implementations spawn the script and return the result.
type ExecFn func(ctx context.Context, t *Task) *TaskResult

// PoolConfig holds worker pool parameters.
type PoolConfig struct {
	Workers  int
	ExecFn   ExecFn
	OnStart  func(t *Task, total int)          // called when a worker claims a task
	OnFinish func(res *TaskResult, total int) // called after the result is stored
}

// Counters is a consistent view of the pool's aggregate progress.
type Counters struct {
	Total     int
	Completed int
	Passed    int
	Failed    int
	InFlight  int
}

// Pool runs tasks with at most Workers executions in flight. Workers pull
// the next undispatched index from a shared cursor, so a fast task frees its
// slot immediately instead of waiting on a slow sibling.
type Pool struct {
	cfg   PoolConfig
	tasks []Task

	next atomic.Int64

	mu       sync.Mutex
	results  []*TaskResult
	states   []TaskState
	counters Counters
}

// NewPool creates a pool over tasks. Task.Index must match the slice position.
func NewPool(tasks []Task, cfg PoolConfig) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pool{
		cfg:      cfg,
		tasks:    tasks,
		results:  make([]*TaskResult, len(tasks)),
		states:   make([]TaskState, len(tasks)),
		counters: Counters{Total: len(tasks)},
	}
}

// Run executes every task exactly once and returns the results in
// discovery order. It returns when all workers have terminated.
func (p *Pool) Run(ctx context.Context) []*TaskResult {
	workers := p.cfg.Workers
	if len(p.tasks) < workers {
		workers = len(p.tasks)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx)
		}()
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*TaskResult, len(p.results))
	copy(out, p.results)
	return out
}

func (p *Pool) work(ctx context.Context) {
	total := len(p.tasks)
	for {
		idx := int(p.next.Add(1) - 1)
		if idx >= total {
			return
		}
		t := &p.tasks[idx]

		p.mu.Lock()
		p.states[idx] = StateRunning
		p.counters.InFlight++
		p.mu.Unlock()

		if p.cfg.OnStart != nil {
			p.cfg.OnStart(t, total)
		}

		res := p.execute(ctx, t)

		p.mu.Lock()
		p.results[idx] = res
		p.states[idx] = res.State
		p.counters.InFlight--
		p.counters.Completed++
		if res.Success {
			p.counters.Passed++
		} else {
			p.counters.Failed++
		}
		p.mu.Unlock()

		if p.cfg.OnFinish != nil {
			p.cfg.OnFinish(res, total)
		}
	}
}

// execute calls ExecFn and converts a panic or a nil result into a failure
// so a misbehaving executor cannot take down the worker.
func (p *Pool) execute(ctx context.Context, t *Task) (res *TaskResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("executor panic", "task", t.ID, "panic", r)
			res = Failed(t, start, ReasonPanic, fmt.Sprintf("executor panic: %v", r))
		}
	}()

	res = p.cfg.ExecFn(ctx, t)
	if res == nil {
		return Failed(t, start, ReasonPanic, "executor returned no result")
	}
	res.Index = t.Index
	if res.Path == "" {
		res.Path = t.ID
	}
	res.Success = res.State == StatePassed
	return res
}

// Counters returns the aggregate progress. Passed+Failed always equals Completed.
func (p *Pool) Counters() Counters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters
}

// Snapshot is a point-in-time copy of per-task state for live displays.
type Snapshot struct {
	Tasks    []Task
	States   []TaskState
	Results  []*TaskResult
	Counters Counters
}

// Snapshot returns copies of the per-task states and stored results.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot{
		Tasks:    p.tasks,
		States:   make([]TaskState, len(p.states)),
		Results:  make([]*TaskResult, len(p.results)),
		Counters: p.counters,
	}
	copy(s.States, p.states)
	for i, r := range p.results {
		if r != nil {
			cpy := *r
			s.Results[i] = &cpy
		}
	}
	return s
}
