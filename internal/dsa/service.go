package dsa

import "sync"

// InitialStep is the global default retry_loop_step a table resets to after
// a failed retry loop (spec.md §4.6).
const InitialStep = 0

// Service owns the per-bus DSA tables (spec.md §9: "the per-bus DSA state
// is owned by the service; callers borrow a handle keyed by bus path").
// Safe for concurrent use; per spec.md §5 a given bus's table is mutated
// only while that bus's display lock is held, but the map itself is
// protected independently since multiple buses may be opened concurrently.
type Service struct {
	mu     sync.Mutex
	tables map[int]*Table
	clock  Clock
}

// NewService constructs an empty DSA service. clock may be nil to use
// time.Now.
func NewService(clock Clock) *Service {
	return &Service{tables: make(map[int]*Table), clock: clock}
}

// Get returns the table for bus, lazily creating one with documented
// defaults on first access (spec.md §9, open question 2: "no table" is
// treated as "create with defaults", so GetSleepMultiplier never needs a
// bare-1.0 special case).
func (s *Service) Get(bus int) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[bus]
	if !ok {
		t = newTable(bus)
		s.tables[bus] = t
	}
	return t
}

// Clock returns the service's clock, defaulting to the real wall clock.
func (s *Service) Clock() Clock {
	if s.clock == nil {
		return realClock{}
	}
	return s.clock
}

// All returns a snapshot of every bus currently holding state, for
// persistence.
func (s *Service) All() map[int]*Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]*Table, len(s.tables))
	for k, v := range s.tables {
		cp := *v
		cp.RecentValues = append([]SuccessfulInvocation(nil), v.RecentValues...)
		out[k] = &cp
	}
	return out
}

// Restore installs t as the table for its bus, overwriting any existing
// state (used when loading persisted state).
func (s *Service) Restore(t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.RecentValues = append([]SuccessfulInvocation(nil), t.RecentValues...)
	s.tables[t.Bus] = &cp
}
