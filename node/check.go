package node

import (
	"fmt"
	"net"

	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// checkSelf asks the cloud for this node's own last-known state. ok is
// false if the cloud has no audit history for this address at all (never
// joined, or evicted past its audit trail).
func (n *Node) checkSelf() (state wire.NodeState, ok bool, err error) {
	conn, err := net.DialTimeout("tcp", n.cfg.CloudAddr, n.cfg.ReadTimeout)
	if err != nil {
		return 0, false, fmt.Errorf("node: dial cloud for check: %w", err)
	}
	fc := frame.New(conn, n.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)
	defer fc.Close()

	req := wire.PlainMethod{Kind: wire.PlainCheck, Addr: n.cfg.GlobalAddr}
	if err := fc.WriteFrame(req.Encode()); err != nil {
		return 0, false, fmt.Errorf("node: send check: %w", err)
	}

	resp, err := fc.ReadFrame()
	if err != nil {
		return 0, false, fmt.Errorf("node: read check response: %w", err)
	}
	state, ok = wire.ParseCheckResponse(resp)
	return state, ok, nil
}
