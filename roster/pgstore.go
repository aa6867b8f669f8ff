package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS nodes (
//   addr    TEXT PRIMARY KEY,
//   state   TEXT NOT NULL,
//   version TEXT NOT NULL
// );
//
// CREATE TABLE IF NOT EXISTS audits (
//   id      BIGSERIAL PRIMARY KEY,
//   addr    TEXT NOT NULL,
//   state   TEXT NOT NULL,
//   version TEXT NOT NULL,
//   ts      BIGINT NOT NULL UNIQUE
// );
// CREATE INDEX IF NOT EXISTS idx_audits_addr ON audits(addr);
// CREATE INDEX IF NOT EXISTS idx_audits_ts ON audits(ts DESC);

// PGStore is a roster backend on a relational database, for clouds that
// need the roster to survive a restart. It opens connections through
// database/sql using the pgx stdlib driver.
type PGStore struct {
	db *sql.DB
}

// OpenPGStore opens a connection pool against dsn (a postgres:// URL) and
// returns a ready PGStore. The caller is responsible for having applied the
// schema above.
func OpenPGStore(dsn string) (*PGStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("roster: open postgres: %w", err)
	}
	return &PGStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) Join(ctx context.Context, addr string, version *semver.Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("roster: begin join tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes(addr, state, version) VALUES ($1, $2, $3)
		   ON CONFLICT (addr) DO UPDATE SET state = $2, version = $3`,
		addr, StateActive.String(), version.String()); err != nil {
		return fmt.Errorf("roster: upsert node(%s): %w", addr, err)
	}

	if err := insertAudit(ctx, tx, addr, StateActive, version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("roster: commit join tx: %w", err)
	}
	return nil
}

func (s *PGStore) PendingDelete(ctx context.Context, addr string, version *semver.Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("roster: begin pending_delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE nodes SET state = $2 WHERE addr = $1`, addr, StatePendingDelete.String()); err != nil {
		return fmt.Errorf("roster: mark pending_delete(%s): %w", addr, err)
	}
	if err := insertAudit(ctx, tx, addr, StatePendingDelete, version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("roster: commit pending_delete tx: %w", err)
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, addr string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE addr = $1`, addr); err != nil {
		return fmt.Errorf("roster: delete node(%s): %w", addr, err)
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, activeOnly bool) ([]Node, error) {
	query := `SELECT addr, state, version FROM nodes`
	args := []any{}
	if activeOnly {
		query += ` WHERE state = $1`
		args = append(args, StateActive.String())
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("roster: list nodes: %w", err)
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var addr, stateStr, versionStr string
		if err := rows.Scan(&addr, &stateStr, &versionStr); err != nil {
			return nil, fmt.Errorf("roster: scan node: %w", err)
		}
		n, err := rowToNode(addr, stateStr, versionStr)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PGStore) Sync(ctx context.Context, since int64) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT addr, state, version, ts FROM audits WHERE ts > $1 ORDER BY ts DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("roster: sync query: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var addr, stateStr, versionStr string
		var ts int64
		if err := rows.Scan(&addr, &stateStr, &versionStr, &ts); err != nil {
			return nil, fmt.Errorf("roster: scan audit: %w", err)
		}
		st, ok := parseState(stateStr)
		if !ok {
			return nil, fmt.Errorf("roster: invalid state %q in audits row", stateStr)
		}
		v, err := semver.NewVersion(versionStr)
		if err != nil {
			return nil, fmt.Errorf("roster: invalid version %q in audits row: %w", versionStr, err)
		}
		out = append(out, AuditEntry{Addr: addr, State: st, Version: v, Ts: ts})
	}
	return out, rows.Err()
}

func (s *PGStore) DeletedTs(ctx context.Context, addr string) (int64, error) {
	var stateStr string
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT state, ts FROM audits WHERE addr = $1 ORDER BY ts DESC LIMIT 1`, addr).Scan(&stateStr, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("roster: deleted_ts query(%s): %w", addr, err)
	}
	st, ok := parseState(stateStr)
	if !ok || st != StatePendingDelete {
		return 0, ErrInvalidState
	}
	return ts, nil
}

func (s *PGStore) LatestTs(ctx context.Context) (int64, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(ts) FROM audits`).Scan(&ts)
	if err != nil {
		return 0, fmt.Errorf("roster: latest_ts query: %w", err)
	}
	if !ts.Valid {
		return 0, nil
	}
	return ts.Int64, nil
}

func (s *PGStore) Check(ctx context.Context, addr string) (State, bool, error) {
	var stateStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM audits WHERE addr = $1 ORDER BY ts DESC LIMIT 1`, addr).Scan(&stateStr)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("roster: check query(%s): %w", addr, err)
	}
	st, ok := parseState(stateStr)
	if !ok {
		return 0, false, fmt.Errorf("roster: invalid state %q in audits row", stateStr)
	}
	return st, true, nil
}

func insertAudit(ctx context.Context, tx *sql.Tx, addr string, state State, version *semver.Version) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO audits(addr, state, version, ts) VALUES ($1, $2, $3, $4)`,
		addr, state.String(), version.String(), monotonicTs(ctx, tx)); err != nil {
		return fmt.Errorf("roster: insert audit(%s): %w", addr, err)
	}
	return nil
}

// monotonicTs returns the database clock (clock_timestamp()) in Unix
// nanoseconds, or one past the largest ts already in audits when the clock
// has not moved beyond it, so ts strictly increases across serialized
// writers. Two concurrent transactions that pick the same ts are rejected
// by the column's UNIQUE constraint. A failed query yields 0.
func monotonicTs(ctx context.Context, tx *sql.Tx) int64 {
	var ts int64
	if err := tx.QueryRowContext(ctx,
		`SELECT GREATEST((EXTRACT(EPOCH FROM clock_timestamp()) * 1e9)::bigint, COALESCE(MAX(ts), 0) + 1) FROM audits`).Scan(&ts); err == nil {
		return ts
	}
	return 0
}

func rowToNode(addr, stateStr, versionStr string) (Node, error) {
	st, ok := parseState(stateStr)
	if !ok {
		return Node{}, fmt.Errorf("roster: invalid state %q for node %s", stateStr, addr)
	}
	v, err := semver.NewVersion(versionStr)
	if err != nil {
		return Node{}, fmt.Errorf("roster: invalid version %q for node %s: %w", versionStr, addr, err)
	}
	return Node{Addr: addr, State: st, Version: v}, nil
}

func parseState(s string) (State, bool) {
	switch s {
	case "ACTIVE":
		return StateActive, true
	case "PENDING_DELETE":
		return StatePendingDelete, true
	default:
		return 0, false
	}
}
