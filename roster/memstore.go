package roster

import (
	"context"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// MemStore is an in-process roster backed by two guarded slices: the
// current node list and the append-only audit log. Suitable for a single
// cloud process; state is lost on restart.
type MemStore struct {
	mu     sync.RWMutex
	nodes  []Node
	audits []AuditEntry
}

// NewMemStore returns an empty in-memory roster.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// nowNanos returns a strictly monotonic nanosecond timestamp, bumped past
// the last recorded audit ts if the wall clock hasn't advanced — ts must
// strictly increase even under rapid successive joins.
func (s *MemStore) nowNanos() int64 {
	ts := time.Now().UnixNano()
	if n := len(s.audits); n > 0 && ts <= s.audits[n-1].Ts {
		ts = s.audits[n-1].Ts + 1
	}
	return ts
}

func (s *MemStore) Join(_ context.Context, addr string, version *semver.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.findNode(addr); idx >= 0 {
		s.nodes[idx].Version = version
		s.nodes[idx].State = StateActive
	} else {
		s.nodes = append(s.nodes, Node{Addr: addr, State: StateActive, Version: version})
	}

	s.audits = append(s.audits, AuditEntry{Addr: addr, State: StateActive, Version: version, Ts: s.nowNanos()})
	return nil
}

func (s *MemStore) PendingDelete(_ context.Context, addr string, version *semver.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.findNode(addr); idx >= 0 {
		s.nodes[idx].State = StatePendingDelete
	}
	s.audits = append(s.audits, AuditEntry{Addr: addr, State: StatePendingDelete, Version: version, Ts: s.nowNanos()})
	return nil
}

func (s *MemStore) Delete(_ context.Context, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.findNode(addr); idx >= 0 {
		s.nodes = append(s.nodes[:idx], s.nodes[idx+1:]...)
	}
	return nil
}

func (s *MemStore) List(_ context.Context, activeOnly bool) ([]Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !activeOnly {
		out := make([]Node, len(s.nodes))
		copy(out, s.nodes)
		return out, nil
	}
	var out []Node
	for _, n := range s.nodes {
		if n.State == StateActive {
			out = append(out, n)
		}
	}
	return out, nil
}

// Sync returns audits newer than since, newest-first, stopping at the
// first entry at or before since — the audit log is already ts-ordered so
// a reverse scan can stop early instead of filtering the whole slice.
func (s *MemStore) Sync(_ context.Context, since int64) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []AuditEntry
	for i := len(s.audits) - 1; i >= 0; i-- {
		if s.audits[i].Ts <= since {
			break
		}
		out = append(out, s.audits[i])
	}
	return out, nil
}

func (s *MemStore) DeletedTs(_ context.Context, addr string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.audits) - 1; i >= 0; i-- {
		if s.audits[i].Addr != addr {
			continue
		}
		if s.audits[i].State != StatePendingDelete {
			return 0, ErrInvalidState
		}
		return s.audits[i].Ts, nil
	}
	return 0, ErrNotFound
}

func (s *MemStore) LatestTs(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.audits) == 0 {
		return 0, nil
	}
	return s.audits[len(s.audits)-1].Ts, nil
}

func (s *MemStore) Check(_ context.Context, addr string) (State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.audits) - 1; i >= 0; i-- {
		if s.audits[i].Addr == addr {
			return s.audits[i].State, true, nil
		}
	}
	return 0, false, nil
}

// findNode returns the index of addr in s.nodes, or -1. Callers must hold
// s.mu.
func (s *MemStore) findNode(addr string) int {
	for i, n := range s.nodes {
		if n.Addr == addr {
			return i
		}
	}
	return -1
}
