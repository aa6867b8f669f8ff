package cloud

import (
	"context"
	"net"

	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

func (c *Cloud) serveConn(conn net.Conn) {
	fc := frame.New(conn, c.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)
	defer fc.Close()

	req, err := fc.ReadFrame()
	if err != nil {
		return
	}

	m := wire.ParsePlain(req)
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReadTimeout)
	defer cancel()

	switch m.Kind {
	case wire.PlainHealth:
		c.handleHealth(ctx, fc)
	case wire.PlainFetch:
		c.handleFetch(ctx, fc)
	case wire.PlainSync:
		c.handleSync(ctx, fc, m.Ts)
	case wire.PlainJoin:
		c.handleJoin(ctx, fc, m.Addr, m.Version)
	case wire.PlainCheck:
		c.handleCheck(ctx, fc, m.Addr)
	default:
		// Protocol violation: close silently per error kind 2.
	}
}
