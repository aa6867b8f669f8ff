// Package roster tracks the set of relay nodes known to the cloud: their
// current state, and the append-only audit log of state transitions that
// gateways replay to stay in sync without refetching the whole roster.
package roster

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// State is a node's lifecycle state.
type State int

const (
	StateActive State = iota
	StatePendingDelete
)

func (s State) String() string {
	if s == StatePendingDelete {
		return "PENDING_DELETE"
	}
	return "ACTIVE"
}

// Node is one entry in the current roster.
type Node struct {
	Addr    string
	State   State
	Version *semver.Version
}

// AuditEntry is one append-only log record of a state transition. Ts is a
// nanosecond Unix timestamp and must strictly increase across the log: the
// store is responsible for that invariant, not the caller.
type AuditEntry struct {
	Addr    string
	State   State
	Version *semver.Version
	Ts      int64
}

// ErrNotFound is returned when an address has no audit history.
var ErrNotFound = fmt.Errorf("roster: node not found")

// ErrInvalidState is returned by DeletedTs when the node's latest audit is
// not PENDING_DELETE — the roster-inconsistency error kind.
var ErrInvalidState = fmt.Errorf("roster: invalid state for operation")

// Store is the roster backend: an in-memory store for single-process clouds,
// or a relational store for clouds that must survive restarts. All methods
// must be safe for concurrent use.
type Store interface {
	// Join records a node joining (or rejoining from PENDING_DELETE) as
	// ACTIVE, appending an audit entry.
	Join(ctx context.Context, addr string, version *semver.Version) error

	// PendingDelete marks a node PENDING_DELETE, appending an audit entry.
	PendingDelete(ctx context.Context, addr string, version *semver.Version) error

	// Delete removes a node from the current roster outright (called once
	// its pending-delete grace period has elapsed). It does not touch the
	// audit log.
	Delete(ctx context.Context, addr string) error

	// List returns the current roster, optionally filtered to ACTIVE nodes.
	List(ctx context.Context, activeOnly bool) ([]Node, error)

	// Sync returns audit entries with Ts strictly greater than since,
	// newest-first.
	Sync(ctx context.Context, since int64) ([]AuditEntry, error)

	// DeletedTs returns the Ts of the most recent audit entry for addr,
	// which must be PENDING_DELETE; ErrInvalidState if the latest entry is
	// ACTIVE, ErrNotFound if there is no audit history at all.
	DeletedTs(ctx context.Context, addr string) (int64, error)

	// LatestTs returns the Ts of the most recent audit entry, or 0 if the
	// log is empty.
	LatestTs(ctx context.Context) (int64, error)

	// Check returns the latest known state for addr, or ok=false if addr
	// has no audit history.
	Check(ctx context.Context, addr string) (state State, ok bool, err error)
}
