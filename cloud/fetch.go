package cloud

import (
	"context"

	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// handleFetch answers "FC" with the full active roster, used by a gateway
// whose local roster cache is empty (first boot, or cache evicted).
func (c *Cloud) handleFetch(ctx context.Context, fc *frame.Conn) {
	ts, err := c.store.LatestTs(ctx)
	if err != nil {
		c.logger.Warn("cloud: fetch latest_ts failed", "error", err)
		return
	}
	nodes, err := c.store.List(ctx, true)
	if err != nil {
		c.logger.Warn("cloud: fetch list failed", "error", err)
		return
	}
	out := make([]wire.FetchNode, len(nodes))
	for i, n := range nodes {
		out[i] = wire.FetchNode{Addr: n.Addr, Version: n.Version}
	}
	_ = fc.WriteFrame(wire.EncodeFetchResponse(ts, out))
}
