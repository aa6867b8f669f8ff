package cloud

import (
	"context"

	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// handleSync answers "SY <ts>" with every audit entry strictly newer than
// ts, newest-first, letting a gateway replay deltas since its last sync
// without refetching the whole roster.
func (c *Cloud) handleSync(ctx context.Context, fc *frame.Conn, since int64) {
	audits, err := c.store.Sync(ctx, since)
	if err != nil {
		c.logger.Warn("cloud: sync failed", "since", since, "error", err)
		return
	}
	out := make([]wire.SyncAudit, len(audits))
	for i, a := range audits {
		out[i] = wire.SyncAudit{Addr: a.Addr, State: wire.NodeState(a.State), Version: a.Version, Ts: a.Ts}
	}
	_ = fc.WriteFrame(wire.EncodeSyncResponse(out))
}
