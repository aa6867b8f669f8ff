package node

import (
	"bytes"
	"crypto/rsa"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/onionmesh/dytp/cryptoutil"
	"github.com/onionmesh/dytp/frame"
)

// phase tracks which handshake record is expected next on the origin
// connection, mirroring the RecvAesKey{hop} / RecvRely{hop} / Done state
// machine: a circuit-extension handshake is two RSA-encrypted records per
// hop (a RELY method, then a key|IV payload), and a node only recognizes
// the pair addressed to its own hop — everything else it forwards
// verbatim, peeling nothing, so the handshake propagates hop by hop down
// the chain in one pass.
type phase int

const (
	phaseRecvAesKey phase = iota
	phaseRecvRely
	phaseDone
)

// sharedState is written by the origin-reading goroutine as the handshake
// completes and read by the upstream-reading goroutine once data starts
// flowing in the reverse direction.
type sharedState struct {
	mu   sync.RWMutex
	done bool
	key  []byte
	iv   []byte
}

func (s *sharedState) setKey(key, iv []byte) {
	s.mu.Lock()
	s.done, s.key, s.iv = true, key, iv
	s.mu.Unlock()
}

func (s *sharedState) snapshot() (done bool, key, iv []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done, s.key, s.iv
}

// runRelay drives one circuit-extension connection to completion: first the
// handshake that establishes this hop's AES key and forwards the remaining
// hops' handshake records, then a full-duplex shuttle between origin
// (gateway or previous hop) and upstream (next hop or destination) once
// both directions are ready.
func runRelay(logger *slog.Logger, priv *rsa.PrivateKey, origin, upstream *frame.Conn, ownHop uint8, tls bool) {
	defer origin.Close()
	defer upstream.Close()

	if ownHop == 0 {
		if tls {
			upstream.SetReadMode(frame.ModeRaw)
			upstream.SetWriteMode(frame.ModeRaw)
		} else {
			upstream.SetReadMode(frame.ModeLine)
			upstream.SetWriteMode(frame.ModeLine)
		}
	} else {
		upstream.SetReadMode(frame.ModeRecord)
		upstream.SetWriteMode(frame.ModeRecord)
	}

	state := &sharedState{}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		forwardOrigin(logger, priv, origin, upstream, ownHop, state)
	}()
	go func() {
		defer wg.Done()
		forwardUpstream(logger, upstream, origin, state, ownHop == 0 && !tls)
	}()
	wg.Wait()
}

// forwardOrigin reads records from the origin connection: during the
// handshake it decrypts or forwards per the phase machine; once Done it
// decrypts data records with this hop's AES key and writes the plaintext
// to upstream.
func forwardOrigin(logger *slog.Logger, priv *rsa.PrivateKey, origin, upstream *frame.Conn, ownHop uint8, state *sharedState) {
	ph := phaseRecvAesKey
	waitHop := ownHop

	for {
		rec, err := origin.ReadFrame()
		if err != nil {
			return
		}

		switch ph {
		case phaseRecvAesKey:
			if waitHop == ownHop {
				plaintext, err := cryptoutil.Decrypt(priv, rec)
				if err != nil {
					logger.Warn("relay: aes key handshake decrypt failed", "error", err)
					return
				}
				key, iv, err := cryptoutil.SplitKeyIV(plaintext)
				if err != nil {
					logger.Warn("relay: malformed key/IV payload", "error", err)
					return
				}
				state.setKey(key, iv)
				if waitHop == 0 {
					ph = phaseDone
				} else {
					ph = phaseRecvRely
					waitHop--
				}
			} else {
				if err := upstream.WriteFrame(rec); err != nil {
					return
				}
				if waitHop == 0 {
					ph = phaseDone
				} else {
					ph = phaseRecvRely
					waitHop--
				}
			}

		case phaseRecvRely:
			if err := upstream.WriteFrame(rec); err != nil {
				return
			}
			ph = phaseRecvAesKey

		case phaseDone:
			_, key, iv := state.snapshot()
			plaintext, err := cryptoutil.Open(key, iv, rec)
			if err != nil {
				return
			}
			if err := upstream.WriteFrame(plaintext); err != nil {
				return
			}
		}
	}
}

// forwardUpstream reads responses from upstream and wraps them in this
// hop's AES layer before writing back toward origin. Payloads arriving
// before the handshake completes are dropped — there is no key yet to
// encrypt them under. On the exit hop's plain-HTTP upstream, the first
// response is read as a framed HTTP message (status line and headers by
// line, body by Content-Length) before upstream drops to raw mode for
// anything further.
func forwardUpstream(logger *slog.Logger, upstream, origin *frame.Conn, state *sharedState, exitPlainHTTP bool) {
	if exitPlainHTTP {
		resp, err := readHTTPResponse(upstream)
		if err != nil {
			return
		}
		if !sealAndForward(logger, origin, state, resp) {
			return
		}
	}

	for {
		rec, err := upstream.ReadFrame()
		if err != nil {
			return
		}
		if !sealAndForward(logger, origin, state, rec) {
			return
		}
	}
}

func sealAndForward(logger *slog.Logger, origin *frame.Conn, state *sharedState, plaintext []byte) bool {
	done, key, iv := state.snapshot()
	if !done {
		logger.Warn("relay: dropped upstream payload received during handshake")
		return true
	}
	ciphertext, err := cryptoutil.Seal(key, iv, plaintext)
	if err != nil {
		return false
	}
	return origin.WriteFrame(ciphertext) == nil
}

// readHTTPResponse reads the exit's plain-HTTP response: the status line
// and headers in line mode, then the body in raw mode, bounded by
// Content-Length when the header is present. Without a usable (positive)
// Content-Length it returns the status line and headers alone, leaving
// upstream in raw mode so any body bytes arrive through later reads.
func readHTTPResponse(upstream *frame.Conn) ([]byte, error) {
	var buf bytes.Buffer
	contentLength := -1

	upstream.SetReadMode(frame.ModeLine)
	for {
		line, err := upstream.ReadFrame()
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteString("\r\n")
		if len(line) == 0 {
			break
		}
		if cl, ok := parseContentLength(line); ok {
			contentLength = cl
		}
	}

	upstream.SetReadMode(frame.ModeRaw)
	if contentLength <= 0 {
		return buf.Bytes(), nil
	}
	body := 0
	for body < contentLength {
		chunk, err := upstream.ReadFrame()
		if err != nil {
			break
		}
		buf.Write(chunk)
		body += len(chunk)
	}
	return buf.Bytes(), nil
}

func parseContentLength(line []byte) (int, bool) {
	s := string(line)
	idx := strings.IndexByte(s, ':')
	if idx < 0 || !strings.EqualFold(strings.TrimSpace(s[:idx]), "content-length") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s[idx+1:]))
	if err != nil {
		return 0, false
	}
	return n, true
}
