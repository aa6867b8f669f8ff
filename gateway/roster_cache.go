package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// cachedNode is one ACTIVE entry in a gateway's local roster mirror.
type cachedNode struct {
	Addr    string
	Version *semver.Version
}

// rosterCache is the gateway's process-wide mirror of the cloud's ACTIVE
// roster. Writers are the sync loop only; readers are request handlers —
// a reader-writer lock serializes them without blocking concurrent circuit
// builds against each other.
type rosterCache struct {
	mu       sync.RWMutex
	nodes    map[string]cachedNode
	latestTs int64
}

func newRosterCache() *rosterCache {
	return &rosterCache{nodes: make(map[string]cachedNode)}
}

// snapshot returns every cached node, in no particular order.
func (c *rosterCache) snapshot() []cachedNode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]cachedNode, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

func (c *rosterCache) empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes) == 0
}

func (c *rosterCache) installSnapshot(ts int64, nodes []wire.FetchNode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodes = make(map[string]cachedNode, len(nodes))
	for _, n := range nodes {
		c.nodes[n.Addr] = cachedNode{Addr: n.Addr, Version: n.Version}
	}
	c.latestTs = ts
}

// applyAudits applies audits oldest-first — callers must reverse the
// newest-first wire order before calling — so that a resurrect-then-delete
// pair (or the reverse) lands in the correct final state.
func (c *rosterCache) applyAudits(audits []wire.SyncAudit) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, a := range audits {
		switch a.State {
		case wire.StateActive:
			c.nodes[a.Addr] = cachedNode{Addr: a.Addr, Version: a.Version}
		case wire.StatePendingDelete:
			delete(c.nodes, a.Addr)
		}
		if a.Ts > c.latestTs {
			c.latestTs = a.Ts
		}
	}
}

// cachedDiskNode is the on-disk format for one roster entry — the version
// is stored as its string form, parsed back through semver.NewVersion on
// load, matching the wire package's own string<->semver.Version boundary.
type cachedDiskNode struct {
	Addr    string `json:"addr"`
	Version string `json:"version"`
}

// cachedRoster is the on-disk format for a gateway's roster snapshot.
type cachedRoster struct {
	LatestTs int64            `json:"latest_ts"`
	Nodes    []cachedDiskNode `json:"nodes"`
}

func (c *rosterCache) cacheFile(dir string) string {
	return filepath.Join(dir, "roster.json")
}

// loadFromDisk populates the cache from a prior snapshot, if CacheDir is
// set and a snapshot exists. A missing, unreadable, or malformed file is
// not an error — the sync loop falls back to a full FC fetch. A node whose
// stored version string no longer parses is dropped rather than failing
// the whole load.
func (c *rosterCache) loadFromDisk(dir string) bool {
	if dir == "" {
		return false
	}
	data, err := os.ReadFile(c.cacheFile(dir))
	if err != nil {
		return false
	}
	var cached cachedRoster
	if err := json.Unmarshal(data, &cached); err != nil {
		return false
	}

	nodes := make(map[string]cachedNode, len(cached.Nodes))
	for _, n := range cached.Nodes {
		v, err := semver.NewVersion(n.Version)
		if err != nil {
			continue
		}
		nodes[n.Addr] = cachedNode{Addr: n.Addr, Version: v}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = nodes
	c.latestTs = cached.LatestTs
	return true
}

// saveToDisk snapshots the current roster + latest_ts to dir. Called after
// every successful sync; a failure here is logged, not fatal — the
// in-memory cache is already authoritative for this process.
func (c *rosterCache) saveToDisk(dir string) error {
	if dir == "" {
		return nil
	}
	c.mu.RLock()
	cached := cachedRoster{LatestTs: c.latestTs, Nodes: make([]cachedDiskNode, 0, len(c.nodes))}
	for _, n := range c.nodes {
		cached.Nodes = append(cached.Nodes, cachedDiskNode{Addr: n.Addr, Version: n.Version.String()})
	}
	c.mu.RUnlock()

	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("gateway: create cache dir: %w", err)
	}
	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("gateway: marshal roster cache: %w", err)
	}
	return os.WriteFile(c.cacheFile(dir), data, 0600)
}

// syncLoop keeps the roster cache fresh: it first loads any prior disk
// snapshot so the gateway can serve traffic immediately after a restart,
// then does a full FC fetch when empty, otherwise an incremental SY
// against the last-seen latest_ts.
func (g *Gateway) syncLoop(ctx context.Context) {
	if g.cache.loadFromDisk(g.cfg.CacheDir) {
		g.logger.Info("gateway: loaded roster cache from disk", "dir", g.cfg.CacheDir)
	}

	g.runSync(ctx)

	ticker := time.NewTicker(g.cfg.SyncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.runSync(ctx)
		}
	}
}

func (g *Gateway) runSync(ctx context.Context) {
	if g.cache.empty() {
		if err := g.fetchFull(ctx); err != nil {
			g.logger.Warn("gateway: roster fetch failed", "error", err)
			return
		}
	} else {
		if err := g.syncDelta(ctx); err != nil {
			g.logger.Warn("gateway: roster sync failed", "error", err)
			return
		}
	}
	if err := g.cache.saveToDisk(g.cfg.CacheDir); err != nil {
		g.logger.Warn("gateway: roster cache snapshot failed", "error", err)
	}
}

func (g *Gateway) fetchFull(ctx context.Context) error {
	fc, err := g.dialCloud(ctx)
	if err != nil {
		return err
	}
	defer fc.Close()

	req := wire.PlainMethod{Kind: wire.PlainFetch}
	if err := fc.WriteFrame(req.Encode()); err != nil {
		return fmt.Errorf("gateway: send FC: %w", err)
	}
	resp, err := fc.ReadFrame()
	if err != nil {
		return fmt.Errorf("gateway: read FC response: %w", err)
	}
	ts, nodes, ok := wire.ParseFetchResponse(resp)
	if !ok {
		return fmt.Errorf("gateway: malformed FC response")
	}
	g.cache.installSnapshot(ts, nodes)
	return nil
}

func (g *Gateway) syncDelta(ctx context.Context) error {
	fc, err := g.dialCloud(ctx)
	if err != nil {
		return err
	}
	defer fc.Close()

	g.cache.mu.RLock()
	since := g.cache.latestTs
	g.cache.mu.RUnlock()

	req := wire.PlainMethod{Kind: wire.PlainSync, Ts: since}
	if err := fc.WriteFrame(req.Encode()); err != nil {
		return fmt.Errorf("gateway: send SY: %w", err)
	}
	resp, err := fc.ReadFrame()
	if err != nil {
		return fmt.Errorf("gateway: read SY response: %w", err)
	}
	audits, ok := wire.ParseSyncResponse(resp)
	if !ok {
		return fmt.Errorf("gateway: malformed SY response")
	}

	// Audits arrive newest-first; apply oldest-first.
	for i, j := 0, len(audits)-1; i < j; i, j = i+1, j-1 {
		audits[i], audits[j] = audits[j], audits[i]
	}
	g.cache.applyAudits(audits)
	return nil
}

func (g *Gateway) dialCloud(ctx context.Context) (*frame.Conn, error) {
	conn, err := net.DialTimeout("tcp", g.cfg.CloudAddr, g.cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial cloud: %w", err)
	}
	fc := frame.New(conn, g.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)
	return fc, nil
}
