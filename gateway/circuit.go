package gateway

import (
	"crypto/rsa"
	"fmt"
	"net"
	"time"

	"github.com/onionmesh/dytp/cryptoutil"
	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

// routeNode is one hop of a built circuit, ordered entry (index 0) to exit
// (index hops-1) — the order the gateway dials and hands off hops in.
type routeNode struct {
	addr string
	next string // next hop's addr, or the exit target on the last hop
	pub  *rsa.PublicKey
	key  []byte
	iv   []byte
}

// circuit is one built onion tunnel, bound to the single entry-node TCP
// connection it was handshaked over. Its lifetime is the lifetime of the
// one client connection it serves.
type circuit struct {
	conn  *frame.Conn
	nodes []routeNode
}

// buildCircuit fetches each hop's public key, generates independent
// AES-256 key/IV pairs, opens the entry connection, and drives the
// handshake described in the handshake section: two RSA-encrypted records
// per hop, all over the one connection to the entry node.
func (g *Gateway) buildCircuit(hops []cachedNode, exitTarget string, tls bool) (*circuit, error) {
	nodes := make([]routeNode, len(hops))
	for i, h := range hops {
		pub, err := fetchPubKey(h.Addr, g.cfg.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("gateway: roster inconsistency, PK fetch for %s: %w", h.Addr, err)
		}
		keyiv, err := cryptoutil.GenerateKeyIV()
		if err != nil {
			return nil, fmt.Errorf("gateway: generate circuit key: %w", err)
		}
		key, iv, err := cryptoutil.SplitKeyIV(keyiv)
		if err != nil {
			return nil, err
		}
		next := exitTarget
		if i < len(hops)-1 {
			next = hops[i+1].Addr
		}
		nodes[i] = routeNode{addr: h.Addr, next: next, pub: pub, key: key, iv: iv}
	}

	conn, err := net.DialTimeout("tcp", nodes[0].addr, g.cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial entry node %s: %w", nodes[0].addr, err)
	}
	fc := frame.New(conn, g.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)

	for i, n := range nodes {
		hop := len(nodes) - 1 - i
		rely := wire.RelyMethod{Hop: uint8(hop), Addr: n.next, TLS: tls}
		envelope, err := cryptoutil.Encrypt(n.pub, rely.Encode())
		if err != nil {
			_ = fc.Close()
			return nil, fmt.Errorf("gateway: encrypt RELY for hop %d: %w", hop, err)
		}
		if err := fc.WriteFrame(envelope); err != nil {
			_ = fc.Close()
			return nil, fmt.Errorf("gateway: send RELY for hop %d: %w", hop, err)
		}

		keyEnvelope, err := cryptoutil.Encrypt(n.pub, append(append([]byte{}, n.key...), n.iv...))
		if err != nil {
			_ = fc.Close()
			return nil, fmt.Errorf("gateway: encrypt key/iv for hop %d: %w", hop, err)
		}
		if err := fc.WriteFrame(keyEnvelope); err != nil {
			_ = fc.Close()
			return nil, fmt.Errorf("gateway: send key/iv for hop %d: %w", hop, err)
		}
	}

	return &circuit{conn: fc, nodes: nodes}, nil
}

// wrap encrypts a client→target payload in one AES-CBC layer per hop,
// innermost (exit) first, outermost (entry) last.
func (c *circuit) wrap(plaintext []byte) ([]byte, error) {
	out := plaintext
	for i := len(c.nodes) - 1; i >= 0; i-- {
		sealed, err := cryptoutil.Seal(c.nodes[i].key, c.nodes[i].iv, out)
		if err != nil {
			return nil, fmt.Errorf("gateway: wrap layer %d: %w", i, err)
		}
		out = sealed
	}
	return out, nil
}

// unwrap decrypts a target→client payload in the opposite order: entry
// first, exit last.
func (c *circuit) unwrap(ciphertext []byte) ([]byte, error) {
	out := ciphertext
	for i := 0; i < len(c.nodes); i++ {
		opened, err := cryptoutil.Open(c.nodes[i].key, c.nodes[i].iv, out)
		if err != nil {
			return nil, fmt.Errorf("gateway: unwrap layer %d: %w", i, err)
		}
		out = opened
	}
	return out, nil
}

func (c *circuit) close() error {
	return c.conn.Close()
}

// fetchPubKey dials addr on its own short-lived connection and asks for
// its RSA public key via the plain PK method.
func fetchPubKey(addr string, timeout time.Duration) (*rsa.PublicKey, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("gateway: dial %s: %w", addr, err)
	}
	fc := frame.New(conn, timeout)
	fc.SetReadMode(frame.ModeRecord)
	fc.SetWriteMode(frame.ModeRecord)
	defer fc.Close()

	req := wire.PlainMethod{Kind: wire.PlainPubKey}
	if err := fc.WriteFrame(req.Encode()); err != nil {
		return nil, fmt.Errorf("gateway: send PK to %s: %w", addr, err)
	}
	der, err := fc.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("gateway: read PK response from %s: %w", addr, err)
	}
	return cryptoutil.DecodePublicKey(der)
}
