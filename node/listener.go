package node

import (
	"net"

	"github.com/onionmesh/dytp/cryptoutil"
	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// serveConn dispatches one accepted connection: a bare "HT" health probe,
// a "PK" public-key request, or an RSA-encrypted RELY method that starts a
// circuit extension. Anything else is a protocol violation — close
// silently, per error kind 2.
func (n *Node) serveConn(conn net.Conn) {
	fc := frame.New(conn, n.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)

	first, err := fc.ReadFrame()
	if err != nil {
		_ = fc.Close()
		return
	}

	if plain := wire.ParsePlain(first); plain.Kind != wire.PlainInvalid {
		n.servePlain(fc, plain)
		return
	}

	n.serveEncrypted(fc, first)
}

func (n *Node) servePlain(fc *frame.Conn, m wire.PlainMethod) {
	defer fc.Close()

	switch m.Kind {
	case wire.PlainHealth:
		resp := wire.EncodeHealthResponse(n.cfg.Version.String(), nil)
		_ = fc.WriteFrame(resp)
	case wire.PlainPubKey:
		_ = fc.WriteFrame(cryptoutil.EncodePublicKey(&n.priv.PublicKey))
	default:
		// Other plain methods (FC, SY, JN, CHECK) are cloud-only; a node
		// receiving one is a protocol violation.
	}
}

func (n *Node) serveEncrypted(fc *frame.Conn, first []byte) {
	plaintext, err := cryptoutil.Decrypt(n.priv, first)
	if err != nil {
		_ = fc.Close()
		return
	}
	rely, err := wire.ParseRely(plaintext)
	if err != nil {
		_ = fc.Close()
		return
	}

	upstream, err := net.DialTimeout("tcp", rely.Addr, n.cfg.ReadTimeout)
	if err != nil {
		n.logger.Warn("relay: dial next hop failed", "addr", rely.Addr, "error", err)
		_ = fc.Close()
		return
	}
	uc := frame.New(upstream, n.cfg.ReadTimeout)

	runRelay(n.logger, n.priv, fc, uc, rely.Hop, rely.TLS)
}
