// Package scheduler serializes tasks per key equivalence class: at most one
// task runs for keys the equality predicate considers equal, later tasks for
// the same class queue behind it in FIFO order, unrelated keys run in parallel.
package scheduler

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// ErrQueueCancelled is returned when the caller's context is done while its
// task is still waiting for an equivalent task to finish. The returned error
// also matches the context error.
var ErrQueueCancelled = errors.New("scheduler: task cancelled while queued")

// EqualFunc reports whether two keys belong to the same equivalence class.
type EqualFunc[K any] func(a, b K) bool

// Task is the unit of work scheduled for a key.
type Task func(ctx context.Context) error

// Hooks are run around a task, inside the serialized section.
type Hooks struct {
	// After always runs once the task returned, before Success or Error. For
	// a task abandoned while queued it runs once the tasks ahead of it finished.
	After func()
	// Success runs when the task returned nil.
	Success func(ctx context.Context) error
	// Error runs when the task failed. The task error is still returned.
	Error func(ctx context.Context, err error) error
}

type entry[K any] struct {
	key  K
	done chan struct{}
}

// Scheduler is a keyed task queue.
type Scheduler[K any] struct {
	isEqual EqualFunc[K]

	mu      sync.Mutex
	queue   []*entry[K]
	running int
	idle    chan struct{}
}

// New returns a Scheduler using isEqual to group keys.
func New[K any](isEqual EqualFunc[K]) *Scheduler[K] {
	if isEqual == nil {
		panic("scheduler: equality predicate is nil")
	}
	idle := make(chan struct{})
	close(idle)
	return &Scheduler[K]{isEqual: isEqual, idle: idle}
}

// Executing reports whether any task is currently running.
func (s *Scheduler[K]) Executing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running > 0
}

// Pending returns the number of tasks running or waiting.
func (s *Scheduler[K]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Wait blocks until no task is running or queued, or ctx is done.
func (s *Scheduler[K]) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		idle := s.idle
		empty := len(s.queue) == 0
		s.mu.Unlock()
		if empty {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Schedule runs task for key once every previously scheduled task of the same
// equivalence class has finished, then runs the hooks. It returns the task
// error unchanged, or the Success hook error when the task succeeded.
func (s *Scheduler[K]) Schedule(ctx context.Context, key K, task Task, hooks Hooks) error {
	self := &entry[K]{key: key, done: make(chan struct{})}

	s.mu.Lock()
	var prev *entry[K]
	for i := len(s.queue) - 1; i >= 0; i-- {
		if s.isEqual(s.queue[i].key, key) {
			prev = s.queue[i]
			break
		}
	}
	if len(s.queue) == 0 {
		s.idle = make(chan struct{})
	}
	s.queue = append(s.queue, self)
	s.mu.Unlock()

	if prev != nil {
		select {
		case <-prev.done:
		case <-ctx.Done():
			// keep the chain intact for tasks queued behind us
			go func() {
				<-prev.done
				if hooks.After != nil {
					hooks.After()
				}
				s.finish(self)
			}()
			return errors.Mark(errors.Wrap(ctx.Err(), "scheduler: waiting for equivalent task"), ErrQueueCancelled)
		}
	}

	s.mu.Lock()
	s.running++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running--
		s.mu.Unlock()
		s.finish(self)
	}()

	return s.run(ctx, task, hooks)
}

func (s *Scheduler[K]) run(ctx context.Context, task Task, hooks Hooks) error {
	err := func() error {
		if hooks.After != nil {
			defer hooks.After()
		}
		return task(ctx)
	}()
	if err != nil {
		if hooks.Error != nil {
			if herr := hooks.Error(ctx, err); herr != nil {
				err = errors.WithSecondaryError(err, herr)
			}
		}
		return err
	}
	if hooks.Success != nil {
		return hooks.Success(ctx)
	}
	return nil
}

func (s *Scheduler[K]) finish(self *entry[K]) {
	s.mu.Lock()
	for i, e := range s.queue {
		if e == self {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	if len(s.queue) == 0 {
		close(s.idle)
	}
	s.mu.Unlock()
	close(self.done)
}
