// Package displock implements the process-wide open-display lock registry
// (spec.md §5): a mapping from canonicalized bus identity to a lock with
// states {free, held-by-thread-T}, plus a process-wide set of currently
// valid handles so misuse of a closed handle is detectable.
package displock

import (
	"sync"

	"github.com/ddcio/ddcio/internal/ddcerr"
)

// Registry is a package-level-style registry guarded by a single mutex,
// the same shape the teacher uses for its global client/config tables
// (see DESIGN.md). Construct one per process (or per test).
type Registry struct {
	mu      sync.Mutex
	held    map[int]chan struct{} // bus -> release channel, present while held
	openers map[int]uint64        // bus -> owning thread/goroutine token
	valid   map[uint64]bool       // handle token -> still open
	nextTok uint64
}

// NewRegistry constructs an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		held:    make(map[int]chan struct{}),
		openers: make(map[int]uint64),
		valid:   make(map[uint64]bool),
	}
}

// Handle is an opaque token identifying one successful Acquire; it must be
// passed to Release and is invalidated by it.
type Handle struct {
	bus   int
	token uint64
}

// Acquire opens bus for the calling thread, identified by threadToken (the
// caller's own stable identity — e.g. a goroutine-local id or a simple
// counter the caller manages; the core does not prescribe how threads are
// identified, only that the same thread reopening fails with AlreadyOpen).
// Without wait, a busy bus fails immediately with ddcerr.Locked; with wait,
// Acquire blocks until the lock is free.
func (r *Registry) Acquire(bus int, threadToken uint64, wait bool) (*Handle, error) {
	for {
		r.mu.Lock()
		owner, busy := r.openers[bus]
		if !busy {
			release := make(chan struct{})
			r.held[bus] = release
			r.openers[bus] = threadToken
			r.nextTok++
			tok := r.nextTok
			r.valid[tok] = true
			r.mu.Unlock()
			return &Handle{bus: bus, token: tok}, nil
		}
		if owner == threadToken {
			r.mu.Unlock()
			return nil, ddcerr.New(ddcerr.AlreadyOpen, "displock.Acquire")
		}
		release := r.held[bus]
		r.mu.Unlock()

		if !wait {
			return nil, ddcerr.New(ddcerr.Locked, "displock.Acquire")
		}
		<-release // wait for the current holder to release, then retry
	}
}

// Release releases h. Calling Release twice returns
// ddcerr.InvalidOperation. Handles are matched by token number only, and
// every Registry numbers its tokens from 1, so a handle from a different
// Registry is not told apart from one of r's own.
func (r *Registry) Release(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.valid[h.token] {
		return ddcerr.New(ddcerr.InvalidOperation, "displock.Release")
	}
	delete(r.valid, h.token)

	release, ok := r.held[h.bus]
	if !ok {
		return ddcerr.New(ddcerr.InvalidOperation, "displock.Release")
	}
	delete(r.held, h.bus)
	delete(r.openers, h.bus)
	close(release)
	return nil
}

// IsValid reports whether h still refers to an open handle, for detecting
// use of a closed handle (spec.md §5).
func (r *Registry) IsValid(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.valid[h.token]
}
