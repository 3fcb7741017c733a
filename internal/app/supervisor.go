package app

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TaskState is the lifecycle of a background loader.
type TaskState int

const (
	TaskPending TaskState = iota
	TaskReady
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskReady:
		return "ready"
	case TaskFailed:
		return "failed"
	default:
		return "pending"
	}
}

// MarshalText encodes the state by name.
func (s TaskState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LoadFunc loads one model or collaborator. Returning nil marks the task
// ready; any error is terminal.
type LoadFunc func(ctx context.Context) error

// TaskStatus is a point-in-time snapshot of a task.
type TaskStatus struct {
	Name     string        `json:"name"`
	State    TaskState     `json:"state"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Task is a future for a background loader.
type Task struct {
	name string
	done chan struct{}

	mu       sync.RWMutex
	state    TaskState
	err      error
	started  time.Time
	finished time.Time
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Ready reports whether the task finished successfully. It never blocks.
func (t *Task) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state == TaskReady
}

// Status returns a snapshot without blocking.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	end := t.finished
	if t.state == TaskPending {
		end = time.Now()
	}
	st := TaskStatus{
		Name:     t.name,
		State:    t.state,
		Duration: end.Sub(t.started),
	}
	if t.err != nil {
		st.Error = t.err.Error()
	}
	return st
}

// Done is closed once the task resolves.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task resolves or ctx is done and returns the load
// error, if any.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.Done():
		t.mu.RLock()
		defer t.mu.RUnlock()
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) resolve(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finished = time.Now()
	t.err = err
	if err != nil {
		t.state = TaskFailed
	} else {
		t.state = TaskReady
	}
	close(t.done)
}

// Supervisor starts and tracks background loader tasks.
type Supervisor struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	order    []string
	wg       sync.WaitGroup
	onChange func(TaskStatus)
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor() *Supervisor {
	return &Supervisor{
		tasks: make(map[string]*Task),
	}
}

// OnResolve registers a callback invoked from the loader goroutine when a
// task resolves. Register before starting tasks.
func (s *Supervisor) OnResolve(fn func(TaskStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Start runs fn in the background under name. Starting a name twice
// returns the existing task.
func (s *Supervisor) Start(ctx context.Context, name string, fn LoadFunc) *Task {
	s.mu.Lock()
	if t, ok := s.tasks[name]; ok {
		s.mu.Unlock()
		return t
	}
	t := &Task{
		name:    name,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	s.tasks[name] = t
	s.order = append(s.order, name)
	onChange := s.onChange
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t.resolve(run(ctx, fn))
		if onChange != nil {
			onChange(t.Status())
		}
	}()
	return t
}

// run calls fn, turning a panic into a load error.
func run(ctx context.Context, fn LoadFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("loader panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Task returns the task registered under name.
func (s *Supervisor) Task(name string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[name]
	return t, ok
}

// Ready reports whether the named task exists and finished successfully.
func (s *Supervisor) Ready(name string) bool {
	t, ok := s.Task(name)
	return ok && t.Ready()
}

// Status returns snapshots of every task in start order.
func (s *Supervisor) Status() []TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tasks[name].Status())
	}
	return out
}

// Wait blocks until every started task has resolved.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
