package node

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/onionmesh/dytp/cryptoutil"
	"github.com/onionmesh/dytp/frame"
	"github.com/onionmesh/dytp/wire"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestSingleHopRelay simulates a 1-hop circuit: a fake "gateway" sends an
// RSA-encrypted RELY handshake and an AES-sealed payload for this node
// (hop 0, the exit, tls=true so the final leg is raw passthrough), and a
// fake destination server echoes back whatever it receives. The origin
// connection stays record-framed throughout, matching how the node always
// treats its origin-facing side — records in, records out.
func TestSingleHopRelay(t *testing.T) {
	priv, err := cryptoutil.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}

	destLn, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer destLn.Close()

	destDone := make(chan struct{})
	go func() {
		defer close(destDone)
		c, err := destLn.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 4096)
		n, err := c.Read(buf)
		if err != nil {
			return
		}
		_, _ = c.Write(append([]byte("ECHO:"), buf[:n]...))
	}()

	gwConn, nodeConn := net.Pipe()
	nodeFC := frame.New(nodeConn, 5*time.Second)
	nodeFC.SetReadMode(frame.ModeRecord)
	nodeFC.SetWriteMode(frame.ModeRecord)

	keyIV, err := cryptoutil.GenerateKeyIV()
	if err != nil {
		t.Fatal(err)
	}
	key, iv, _ := cryptoutil.SplitKeyIV(keyIV)

	gwFC := frame.New(gwConn, 5*time.Second)
	gwFC.SetReadMode(frame.ModeRecord)
	gwFC.SetWriteMode(frame.ModeRecord)

	go func() {
		rely := wire.RelyMethod{Hop: 0, Addr: destLn.Addr().String(), TLS: true}
		relyEnc, _ := cryptoutil.Encrypt(&priv.PublicKey, rely.Encode())
		keyEnc, _ := cryptoutil.Encrypt(&priv.PublicKey, keyIV)
		_ = gwFC.WriteFrame(relyEnc)
		_ = gwFC.WriteFrame(keyEnc)

		plaintext := []byte("GET / HTTP/1.1\r\nHost: example\r\n\r\n")
		ct, _ := cryptoutil.Seal(key, iv, plaintext)
		_ = gwFC.WriteFrame(ct)
	}()

	first, err := nodeFC.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err := cryptoutil.Decrypt(priv, first)
	if err != nil {
		t.Fatal(err)
	}
	rely, err := wire.ParseRely(plaintext)
	if err != nil {
		t.Fatal(err)
	}

	upstream, err := net.DialTimeout("tcp", rely.Addr, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	uc := frame.New(upstream, 5*time.Second)

	relayDone := make(chan struct{})
	go func() {
		runRelay(discardLogger(), priv, nodeFC, uc, rely.Hop, rely.TLS)
		close(relayDone)
	}()

	respCT, err := gwFC.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := cryptoutil.Open(key, iv, respCT)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(resp, []byte("ECHO:GET / HTTP/1.1")) {
		t.Fatalf("unexpected response: %q", resp)
	}

	<-destDone
	_ = gwConn.Close()
	<-relayDone
}
