// Package resource owns the lifecycle of the shared graph store: lazy
// exactly-once initialization, lease counting, and drain-then-close
// shutdown. At most one underlying store ever exists and nobody closes it
// but the registry.
package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/grand-thief-cash/yggdrasil/internal/graph"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateReady         State = "ready"
	StateDraining      State = "draining"
	StateClosed        State = "closed"
)

// Handle wraps the shared store for callers. It exposes the query surface
// only; Close stays with the registry.
type Handle struct {
	store graph.Store
}

func (h *Handle) Store() graph.Querier { return h.store }

// Lease is one unit of the in-use count. Release is idempotent: the first
// call decrements, later calls are no-ops.
type Lease struct {
	reg    *Registry
	handle *Handle

	mu       sync.Mutex
	released bool
}

func (l *Lease) Store() graph.Querier { return l.handle.Store() }

func (l *Lease) Release() error {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return nil
	}
	l.released = true
	l.mu.Unlock()
	return l.reg.release()
}

// OpenFunc connects the underlying store. Called at most once per
// successful initialization.
type OpenFunc func(ctx context.Context) (graph.Store, error)

type Registry struct {
	opener OpenFunc
	sf     singleflight.Group

	mu       sync.Mutex
	state    State
	store    graph.Store
	handle   *Handle
	leases   int
	drained  chan struct{} // closed when leases hit zero while draining
	closedCh chan struct{} // closed once the registry is terminal
}

func NewRegistry(opener OpenFunc) *Registry {
	return &Registry{
		opener:   opener,
		state:    StateUninitialized,
		closedCh: make(chan struct{}),
	}
}

// Get returns the shared handle, initializing the store on first use.
// Concurrent first callers coalesce on one open; a failed open leaves the
// registry uninitialized so a later call can retry. Draining or closed
// registries refuse with ErrUnavailable.
func (r *Registry) Get(ctx context.Context) (*Handle, error) {
	r.mu.Lock()
	switch r.state {
	case StateReady:
		h := r.handle
		r.mu.Unlock()
		return h, nil
	case StateDraining, StateClosed:
		r.mu.Unlock()
		return nil, ErrUnavailable
	}
	r.mu.Unlock()

	v, err, _ := r.sf.Do("init", func() (interface{}, error) {
		// A coalesced waiter may arrive after the winning flight finished;
		// re-check before opening another store.
		r.mu.Lock()
		switch r.state {
		case StateReady:
			h := r.handle
			r.mu.Unlock()
			return h, nil
		case StateDraining, StateClosed:
			r.mu.Unlock()
			return nil, ErrUnavailable
		}
		r.mu.Unlock()

		store, err := r.opener(ctx)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.state != StateUninitialized {
			// Shutdown won the race while the open was in flight.
			r.mu.Unlock()
			_ = store.Close(context.Background())
			return nil, ErrUnavailable
		}
		r.state = StateReady
		r.store = store
		r.handle = &Handle{store: store}
		h := r.handle
		r.mu.Unlock()
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Acquire is Get plus a lease on the store. The lease keeps Shutdown
// draining until released.
func (r *Registry) Acquire(ctx context.Context) (*Lease, error) {
	h, err := r.Get(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	// Get can race Shutdown; the lease is only valid while ready.
	if r.state != StateReady {
		r.mu.Unlock()
		return nil, ErrUnavailable
	}
	r.leases++
	r.mu.Unlock()
	return &Lease{reg: r, handle: h}, nil
}

func (r *Registry) release() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateClosed {
		return ErrStaleHandle
	}
	if r.leases > 0 {
		r.leases--
	}
	if r.leases == 0 && r.state == StateDraining && r.drained != nil {
		close(r.drained)
		r.drained = nil
	}
	return nil
}

// WithLease brackets fn between Acquire and Release so every exit path,
// including panics unwinding through fn, gives the lease back.
func (r *Registry) WithLease(ctx context.Context, fn func(q graph.Querier) error) error {
	lease, err := r.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release() }()
	return fn(lease.Store())
}

// Shutdown moves ready → draining, refuses new work, waits until every
// lease is released or the grace window (or ctx) runs out, then closes the
// underlying store exactly once. Repeat calls observe closed and return
// nil; concurrent calls wait for the first to finish. From uninitialized
// the registry goes straight to closed.
func (r *Registry) Shutdown(ctx context.Context, grace time.Duration) error {
	r.mu.Lock()
	switch r.state {
	case StateClosed:
		r.mu.Unlock()
		return nil
	case StateDraining:
		ch := r.closedCh
		r.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case StateUninitialized:
		r.state = StateClosed
		close(r.closedCh)
		r.mu.Unlock()
		return nil
	}

	r.state = StateDraining
	drained := make(chan struct{})
	if r.leases == 0 {
		close(drained)
	} else {
		r.drained = drained
	}
	store := r.store
	closedCh := r.closedCh
	r.mu.Unlock()

	if grace > 0 {
		timer := time.NewTimer(grace)
		select {
		case <-drained:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	closeCtx := ctx
	if ctx.Err() != nil {
		closeCtx = context.Background()
	}
	err := store.Close(closeCtx)

	r.mu.Lock()
	r.state = StateClosed
	r.leases = 0
	r.drained = nil
	close(closedCh)
	r.mu.Unlock()
	return err
}

// Ping probes the underlying store; only meaningful while ready.
func (r *Registry) Ping(ctx context.Context) error {
	r.mu.Lock()
	st, store := r.state, r.store
	r.mu.Unlock()
	if st != StateReady {
		return fmt.Errorf("graph resource %s", st)
	}
	return store.Ping(ctx)
}

func (r *Registry) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Registry) Leases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leases
}
