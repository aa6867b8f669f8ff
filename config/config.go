// Package config validates the startup parameters shared by the cloud,
// node, and gateway entrypoints: addresses, the circuit hop count, the
// roster backend selector, and the various timeouts. A validation failure
// here is the configuration-error kind — fatal at startup, never once the
// process is running.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// MinHops and MaxHops bound the gateway's circuit length, inclusive.
const (
	MinHops = 3
	MaxHops = 9
)

// ValidateHops enforces the circuit-length bound.
func ValidateHops(hops int) error {
	if hops < MinHops || hops > MaxHops {
		return fmt.Errorf("config: hops must be between %d and %d, got %d", MinHops, MaxHops, hops)
	}
	return nil
}

// ValidateAddr checks that addr parses as a host:port pair. It does not
// resolve the host — a gateway or node address may be a hostname that
// only resolves at dial time.
func ValidateAddr(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("config: invalid address %q: %w", addr, err)
	}
	return nil
}

// ValidateDuration rejects a non-positive timeout or interval — zero would
// either disable the deadline outright or spin the caller's ticker.
func ValidateDuration(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("config: %s must be positive, got %s", name, d)
	}
	return nil
}

// RosterBackend selects the cloud's roster store.
type RosterBackend int

const (
	// BackendMem is the in-process, non-persistent roster store.
	BackendMem RosterBackend = iota
	// BackendPostgres is the database/sql-backed persistent roster store.
	BackendPostgres
)

// ParseDSN classifies a roster store DSN: the literal string "mem" (or an
// empty string) selects the in-memory backend; anything else must be a "postgres://" or
// "postgresql://" URL, since PGStore is the only relational backend wired.
func ParseDSN(dsn string) (RosterBackend, string, error) {
	if dsn == "mem" || dsn == "" {
		return BackendMem, "", nil
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return BackendPostgres, dsn, nil
	}
	return 0, "", fmt.Errorf("config: unsupported database DSN scheme %q, want \"mem\" or a postgres:// URL", dsn)
}
