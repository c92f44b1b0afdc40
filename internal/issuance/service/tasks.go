package service

import (
	"context"
	"sync"

	"vcwallet/internal/platform/metrics"
	"vcwallet/pkg/domain"
)

// taskRegistry tracks background issuance work per identity so it can be
// cancelled. Tasks run on a context detached from the request that started
// them.
type taskRegistry struct {
	mu      sync.Mutex
	next    uint64
	cancels map[domain.Identity]map[uint64]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
	metrics *metrics.Metrics
}

func newTaskRegistry(m *metrics.Metrics) *taskRegistry {
	return &taskRegistry{
		cancels: make(map[domain.Identity]map[uint64]context.CancelFunc),
		metrics: m,
	}
}

// begin registers a task for identity. The returned context keeps the
// values of parent but not its cancellation. ok is false once the registry
// is closed.
func (r *taskRegistry) begin(parent context.Context, identity domain.Identity) (_ context.Context, done func(), ok bool) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		cancel()
		return ctx, func() {}, false
	}
	r.next++
	id := r.next
	if r.cancels[identity] == nil {
		r.cancels[identity] = make(map[uint64]context.CancelFunc)
	}
	r.cancels[identity][id] = cancel
	r.wg.Add(1)
	r.metrics.AddDetachedTasks(1)

	return ctx, func() {
		r.mu.Lock()
		delete(r.cancels[identity], id)
		if len(r.cancels[identity]) == 0 {
			delete(r.cancels, identity)
		}
		r.mu.Unlock()
		cancel()
		r.metrics.AddDetachedTasks(-1)
		r.wg.Done()
	}, true
}

// detach runs fn in its own goroutine. Nothing runs after close.
func (r *taskRegistry) detach(parent context.Context, identity domain.Identity, fn func(ctx context.Context)) bool {
	ctx, done, ok := r.begin(parent, identity)
	if !ok {
		return false
	}
	go func() {
		defer done()
		fn(ctx)
	}()
	return true
}

// run runs fn in the calling goroutine, cancellable like a detached task.
func (r *taskRegistry) run(parent context.Context, identity domain.Identity, fn func(ctx context.Context) error) error {
	ctx, done, ok := r.begin(parent, identity)
	defer done()
	if !ok {
		return ctx.Err()
	}
	return fn(ctx)
}

func (r *taskRegistry) cancel(identity domain.Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.cancels[identity])
	for _, cancel := range r.cancels[identity] {
		cancel()
	}
	return n
}

func (r *taskRegistry) close() {
	r.mu.Lock()
	r.closed = true
	for _, tasks := range r.cancels {
		for _, cancel := range tasks {
			cancel()
		}
	}
	r.mu.Unlock()
	r.wg.Wait()
}
