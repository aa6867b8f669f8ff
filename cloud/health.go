package cloud

import (
	"context"

	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// handleHealth answers "HT" with every known node, active and
// pending-delete alike — a gateway or operator tool wants the full
// picture, not just what it would build circuits from.
func (c *Cloud) handleHealth(ctx context.Context, fc *frame.Conn) {
	nodes, err := c.store.List(ctx, false)
	if err != nil {
		c.logger.Warn("cloud: health list failed", "error", err)
		return
	}
	out := make([]wire.HealthNode, len(nodes))
	for i, n := range nodes {
		out[i] = wire.HealthNode{Addr: n.Addr, State: wire.NodeState(n.State), Version: n.Version}
	}
	_ = fc.WriteFrame(wire.EncodeHealthResponse(c.cfg.Version.String(), out))
}
