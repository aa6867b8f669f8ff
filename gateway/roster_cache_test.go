package gateway

import (
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/onionmesh/dytp/wire"
)

func TestRosterCacheDiskRoundTrip(t *testing.T) {
	dir := t.TempDir()

	c := newRosterCache()
	v := semver.MustParse("1.2.3")
	c.installSnapshot(42, []wire.FetchNode{{Addr: "a:1", Version: v}, {Addr: "b:2", Version: v}})

	if err := c.saveToDisk(dir); err != nil {
		t.Fatalf("saveToDisk: %v", err)
	}

	loaded := newRosterCache()
	if !loaded.loadFromDisk(dir) {
		t.Fatal("loadFromDisk: expected snapshot to load")
	}
	if loaded.latestTs != 42 {
		t.Fatalf("expected latestTs 42, got %d", loaded.latestTs)
	}
	snap := loaded.snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(snap))
	}
	for _, n := range snap {
		if !n.Version.Equal(v) {
			t.Fatalf("expected version %s, got %s", v, n.Version)
		}
	}
}

func TestRosterCacheLoadFromDiskMissing(t *testing.T) {
	c := newRosterCache()
	if c.loadFromDisk(t.TempDir()) {
		t.Fatal("expected loadFromDisk to report no snapshot")
	}
	if c.loadFromDisk("") {
		t.Fatal("expected loadFromDisk to no-op on empty dir")
	}
}

func TestInstallSnapshot(t *testing.T) {
	c := newRosterCache()
	v := semver.MustParse("1.0.0")
	c.installSnapshot(100, []wire.FetchNode{{Addr: "a", Version: v}, {Addr: "b", Version: v}})

	if len(c.snapshot()) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(c.snapshot()))
	}
	if c.latestTs != 100 {
		t.Fatalf("expected latestTs 100, got %d", c.latestTs)
	}
}

func TestApplyAuditsOldestFirst(t *testing.T) {
	c := newRosterCache()
	v := semver.MustParse("1.0.0")

	// Oldest-first order, as the caller must supply after reversing the
	// wire's newest-first response: join a, then delete a.
	c.applyAudits([]wire.SyncAudit{
		{Addr: "a", State: wire.StateActive, Version: v, Ts: 1},
		{Addr: "a", State: wire.StatePendingDelete, Version: v, Ts: 2},
	})

	if len(c.snapshot()) != 0 {
		t.Fatalf("expected node a removed, roster has %d entries", len(c.snapshot()))
	}
	if c.latestTs != 2 {
		t.Fatalf("expected latestTs 2, got %d", c.latestTs)
	}
}

func TestApplyAuditsResurrect(t *testing.T) {
	c := newRosterCache()
	v := semver.MustParse("1.0.0")

	c.applyAudits([]wire.SyncAudit{
		{Addr: "a", State: wire.StatePendingDelete, Version: v, Ts: 1},
		{Addr: "a", State: wire.StateActive, Version: v, Ts: 2},
	})

	snap := c.snapshot()
	if len(snap) != 1 || snap[0].Addr != "a" {
		t.Fatalf("expected node a active after resurrect, got %v", snap)
	}
}
