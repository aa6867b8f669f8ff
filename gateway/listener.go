package gateway

import (
	"bytes"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/onionmesh/dytp/frame"
)

// handleConn parses one client HTTP request, builds a circuit to the
// request's target, and relays the connection through it — CONNECT
// tunnels switch both legs to raw mode after the handshake; plain HTTP
// requests are captured whole (request line through the blank line) and
// sent as the first onion-wrapped record, then the connection shuttles
// raw bytes both ways.
func (g *Gateway) handleConn(conn net.Conn) {
	defer conn.Close()

	fc := frame.New(conn, g.cfg.ReadTimeout)
	fc.SetReadMode(frame.ModeLine)
	fc.SetWriteMode(frame.ModeLine)

	requestLine, err := fc.ReadFrame()
	if err != nil {
		return
	}
	method, target, ok := parseRequestLine(requestLine)
	if !ok {
		return
	}

	var header bytes.Buffer
	header.Write(requestLine)
	header.WriteString("\r\n")
	for {
		line, err := fc.ReadFrame()
		if err != nil {
			return
		}
		header.Write(line)
		header.WriteString("\r\n")
		if len(line) == 0 {
			break
		}
	}

	isConnect := strings.EqualFold(method, "CONNECT")
	exitTarget := target
	if !isConnect {
		exitTarget, ok = targetFromURL(target)
		if !ok {
			return
		}
	}

	hops, err := g.selectPath(g.cfg.Hops)
	if err != nil {
		g.logger.Warn("gateway: path selection failed", "error", err)
		return
	}

	circ, err := g.buildCircuit(hops, exitTarget, isConnect)
	if err != nil {
		g.logger.Warn("gateway: circuit build failed", "target", exitTarget, "error", err)
		return
	}
	defer circ.close()

	if isConnect {
		if err := fc.WriteFrame([]byte("HTTP/1.1 200 OK")); err != nil {
			return
		}
		if err := fc.WriteFrame(nil); err != nil {
			return
		}
	} else {
		sealed, err := circ.wrap(header.Bytes())
		if err != nil {
			g.logger.Warn("gateway: wrap request failed", "error", err)
			return
		}
		if err := circ.conn.WriteFrame(sealed); err != nil {
			return
		}
	}

	fc.SetReadMode(frame.ModeRaw)
	fc.SetWriteMode(frame.ModeRaw)

	shuttle(g, fc, circ)
}

// shuttle runs the full-duplex relay between the client connection and the
// circuit's entry-node connection until either side closes.
func shuttle(g *Gateway, fc *frame.Conn, circ *circuit) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for {
			chunk, err := fc.ReadFrame()
			if err != nil {
				_ = circ.conn.Close()
				return
			}
			sealed, err := circ.wrap(chunk)
			if err != nil {
				g.logger.Warn("gateway: wrap chunk failed", "error", err)
				_ = circ.conn.Close()
				return
			}
			if err := circ.conn.WriteFrame(sealed); err != nil {
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for {
			record, err := circ.conn.ReadFrame()
			if err != nil {
				_ = fc.Close()
				return
			}
			plain, err := circ.unwrap(record)
			if err != nil {
				g.logger.Warn("gateway: unwrap record failed", "error", err)
				_ = fc.Close()
				return
			}
			if err := fc.WriteFrame(plain); err != nil {
				return
			}
		}
	}()

	wg.Wait()
}

// parseRequestLine splits "METHOD target HTTP/1.1" into method and target.
func parseRequestLine(line []byte) (method, target string, ok bool) {
	fields := strings.Fields(string(line))
	if len(fields) != 3 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

// targetFromURL extracts "host:port" from an absolute-form request target,
// defaulting to port 80 when none is given.
func targetFromURL(target string) (string, bool) {
	rest := target
	if idx := strings.Index(rest, "://"); idx >= 0 {
		rest = rest[idx+3:]
	}
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", false
	}
	if _, _, err := net.SplitHostPort(rest); err == nil {
		return rest, true
	}
	return fmt.Sprintf("%s:80", rest), true
}
