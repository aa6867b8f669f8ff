package node

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/onionmesh/dytp/cryptoutil"
	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// join performs one JOIN exchange: send "JN <addr> <version>", then answer
// the cloud's RSA-encrypted nonce challenge by decrypting it with this
// node's private key and echoing the plaintext back, proving the node
// controls the address it claims.
func (n *Node) join() error {
	conn, err := net.DialTimeout("tcp", n.cfg.CloudAddr, n.cfg.ReadTimeout)
	if err != nil {
		return fmt.Errorf("node: dial cloud: %w", err)
	}
	fc := frame.New(conn, n.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)
	defer fc.Close()

	req := wire.PlainMethod{Kind: wire.PlainJoin, Addr: n.cfg.GlobalAddr, Version: n.cfg.Version}
	if err := fc.WriteFrame(req.Encode()); err != nil {
		return fmt.Errorf("node: send join: %w", err)
	}

	challenge, err := fc.ReadFrame()
	if err != nil {
		return fmt.Errorf("node: read join challenge: %w", err)
	}

	nonce, err := cryptoutil.Decrypt(n.priv, challenge)
	if err != nil {
		return fmt.Errorf("node: decrypt join challenge: %w", err)
	}
	if err := fc.WriteFrame(nonce); err != nil {
		return fmt.Errorf("node: echo join challenge: %w", err)
	}
	return nil
}

// rejoinLoop performs the initial join, then on each tick asks the cloud
// for this node's state via CHECK and joins again unless the cloud reports
// it ACTIVE — so a node the health loop moved to PENDING_DELETE (or that
// the cloud never admitted) returns to the roster.
func (n *Node) rejoinLoop(ctx context.Context) {
	if err := n.join(); err != nil {
		n.logger.Warn("node: initial join failed", "error", err)
	} else {
		n.logger.Info("node: joined cloud", "cloud_addr", n.cfg.CloudAddr)
	}

	ticker := time.NewTicker(n.cfg.RejoinEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, ok, err := n.checkSelf()
			if err != nil {
				n.logger.Warn("node: self-check failed, attempting rejoin anyway", "error", err)
			} else if ok && state == wire.StateActive {
				continue
			}
			if err := n.join(); err != nil {
				n.logger.Warn("node: rejoin failed", "error", err)
			}
		}
	}
}
