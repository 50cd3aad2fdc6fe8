package worker

import (
	"context"
	"sync"
)

// CancelRegistry tracks the cancel function of every in-flight task so the
// API layer can abort a running audit by id.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCancelRegistry constructs an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

// Register derives a cancelable context for the task and records its cancel
// function. The returned release func must be called when the task finishes.
func (r *CancelRegistry) Register(taskID string, parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	r.mu.Lock()
	r.cancels[taskID] = cancel
	r.mu.Unlock()
	return ctx, func() {
		r.mu.Lock()
		delete(r.cancels, taskID)
		r.mu.Unlock()
		cancel()
	}
}

// Cancel aborts the task if it is currently running. It reports whether a
// running task was found.
func (r *CancelRegistry) Cancel(taskID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[taskID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}
