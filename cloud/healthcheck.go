package cloud

import (
	"context"
	"net"
	"time"

	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/roster"
	"github.com/onionmesh/dytp/wire"
)

// healthcheckLoop periodically pings every known node: an ACTIVE node that
// fails to answer HT is moved to PENDING_DELETE; a PENDING_DELETE node that
// has sat past its deletion grace period is removed outright.
func (c *Cloud) healthcheckLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HealthcheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runHealthcheck(ctx)
		}
	}
}

func (c *Cloud) runHealthcheck(ctx context.Context) {
	nodes, err := c.store.List(ctx, false)
	if err != nil {
		c.logger.Error("cloud: healthcheck list failed", "error", err)
		return
	}

	for _, n := range nodes {
		n := n
		switch n.State {
		case roster.StateActive:
			go c.checkActiveNode(ctx, n)
		case roster.StatePendingDelete:
			go c.reapPendingNode(ctx, n)
		}
	}
}

func (c *Cloud) checkActiveNode(ctx context.Context, n roster.Node) {
	if c.pingNode(n.Addr) {
		return
	}
	c.logger.Warn("cloud: node unreachable, marking pending delete", "addr", n.Addr)
	if err := c.store.PendingDelete(ctx, n.Addr, n.Version); err != nil {
		c.logger.Error("cloud: pending_delete failed", "addr", n.Addr, "error", err)
	}
}

func (c *Cloud) reapPendingNode(ctx context.Context, n roster.Node) {
	ts, err := c.store.DeletedTs(ctx, n.Addr)
	if err != nil {
		c.logger.Error("cloud: deleted_ts lookup failed", "addr", n.Addr, "error", err)
		return
	}
	elapsed := time.Duration(nanosSince(ts))
	if elapsed <= c.cfg.NodeDeletionTimeout {
		return
	}
	c.logger.Warn("cloud: node past deletion grace period, removing", "addr", n.Addr, "elapsed", elapsed)
	if err := c.store.Delete(ctx, n.Addr); err != nil {
		c.logger.Error("cloud: delete failed", "addr", n.Addr, "error", err)
	}
}

// nanosSince returns the duration elapsed since a nanosecond Unix
// timestamp, as a time.Duration's int64 nanosecond count.
func nanosSince(ts int64) int64 {
	return time.Now().UnixNano() - ts
}

// pingNode dials addr and sends a plain HT, treating any failure — dial,
// write, read, or malformed response — as unreachable.
func (c *Cloud) pingNode(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, c.cfg.ReadTimeout)
	if err != nil {
		return false
	}
	fc := frame.New(conn, c.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)
	defer fc.Close()

	req := wire.PlainMethod{Kind: wire.PlainHealth}
	if err := fc.WriteFrame(req.Encode()); err != nil {
		return false
	}
	resp, err := fc.ReadFrame()
	if err != nil {
		return false
	}
	_, _, ok := wire.ParseHealthResponse(resp)
	return ok
}
