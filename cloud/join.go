package cloud

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net"

	"github.com/Masterminds/semver/v3"
	"github.com/onionmesh/dytp/cryptoutil"
	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// handleJoin admits a candidate node. It dials the claimed address on a
// separate connection to fetch the candidate's RSA public key, then proves
// the candidate controls that address by encrypting a nonce challenge
// under that key and requiring it echoed back, in plaintext, on the
// original JN connection. Only then is the node recorded as ACTIVE.
func (c *Cloud) handleJoin(ctx context.Context, fc *frame.Conn, addr string, version *semver.Version) {
	pub, err := c.fetchPubKey(ctx, addr)
	if err != nil {
		c.logger.Warn("cloud: join pubkey fetch failed", "addr", addr, "error", err)
		return
	}

	nonce, envelope, err := cryptoutil.NewChallenge(pub)
	if err != nil {
		c.logger.Warn("cloud: join challenge generation failed", "addr", addr, "error", err)
		return
	}
	if err := fc.WriteFrame(envelope); err != nil {
		c.logger.Warn("cloud: join challenge write failed", "addr", addr, "error", err)
		return
	}

	resp, err := fc.ReadFrame()
	if err != nil {
		c.logger.Warn("cloud: join challenge echo read failed", "addr", addr, "error", err)
		return
	}
	if !cryptoutil.VerifyChallenge(nonce, resp) {
		c.logger.Warn("cloud: join challenge failed, refusing to admit", "addr", addr)
		return
	}

	if err := c.store.Join(ctx, addr, version); err != nil {
		c.logger.Warn("cloud: join store update failed", "addr", addr, "error", err)
	}
}

// fetchPubKey dials addr on its own connection and asks for its RSA public
// key via the plain PK method.
func (c *Cloud) fetchPubKey(ctx context.Context, addr string) (*rsa.PublicKey, error) {
	conn, err := net.DialTimeout("tcp", addr, c.cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("cloud: dial candidate %s: %w", addr, err)
	}
	pfc := frame.New(conn, c.cfg.ReadTimeout)
	pfc.SetReadMode(frame.ModeRecord)
	pfc.SetWriteMode(frame.ModeRecord)
	defer pfc.Close()

	req := wire.PlainMethod{Kind: wire.PlainPubKey}
	if err := pfc.WriteFrame(req.Encode()); err != nil {
		return nil, fmt.Errorf("cloud: send PK to %s: %w", addr, err)
	}
	der, err := pfc.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("cloud: read PK response from %s: %w", addr, err)
	}
	pub, err := cryptoutil.DecodePublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("cloud: decode candidate pubkey from %s: %w", addr, err)
	}
	return pub, nil
}
