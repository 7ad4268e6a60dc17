// Package background runs fire-and-forget workers keyed by entity id.
// Triggering an id already in flight is a no-op; WaitForAll drains the
// registry and never returns an error.
package background

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Registry tracks in-flight tasks by id, bounded by a worker semaphore.
//
// The id is removed in the task's deferred cleanup. A re-trigger landing
// between the worker's final commit and that cleanup starts a fresh run;
// workers must therefore be idempotent, which document ingestion is
// (delete-then-insert yields the same steady state).
type Registry struct {
	name string
	sem  *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

func NewRegistry(name string, maxWorkers int) *Registry {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Registry{
		name:     name,
		sem:      semaphore.NewWeighted(int64(maxWorkers)),
		inflight: make(map[string]chan struct{}),
	}
}

// Trigger spawns run for id unless a task for it is already in flight.
// Returns true when a new task was started.
func (r *Registry) Trigger(id string, run func(ctx context.Context)) bool {
	r.mu.Lock()
	if _, busy := r.inflight[id]; busy {
		r.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	r.inflight[id] = done
	r.mu.Unlock()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error().Str("registry", r.name).Str("id", id).Any("panic", p).Msg("background_task_panic")
			}
			r.mu.Lock()
			delete(r.inflight, id)
			r.mu.Unlock()
			close(done)
		}()
		if err := r.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer r.sem.Release(1)
		run(context.Background())
	}()
	return true
}

// InFlight reports whether a task for id is currently tracked.
func (r *Registry) InFlight(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, busy := r.inflight[id]
	return busy
}

// WaitForAll blocks until every task present at the time of the call has
// finished. Task failures and panics are absorbed.
func (r *Registry) WaitForAll() {
	r.mu.Lock()
	snapshot := make([]chan struct{}, 0, len(r.inflight))
	for _, done := range r.inflight {
		snapshot = append(snapshot, done)
	}
	r.mu.Unlock()

	for _, done := range snapshot {
		<-done
	}
}
