package cloud

import (
	"context"

	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// handleCheck answers "CHECK <addr>" with the node's last-known state, or
// "E" if the roster has no audit history for it.
func (c *Cloud) handleCheck(ctx context.Context, fc *frame.Conn, addr string) {
	state, ok, err := c.store.Check(ctx, addr)
	if err != nil {
		c.logger.Warn("cloud: check failed", "addr", addr, "error", err)
		return
	}
	_ = fc.WriteFrame(wire.CheckResponse(wire.NodeState(state), ok))
}
