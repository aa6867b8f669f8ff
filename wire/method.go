// Package wire encodes and parses the ASCII control methods exchanged over
// record-framed connections: the plain methods (HT, PK, FC, SY, JN, CHECK)
// and the encrypted RELY method carried inside an RSA envelope. Methods are
// space-separated ASCII, parsed with a strict tokenizer rather than a
// regular expression — each method has a fixed, small token shape, so a
// split-and-count is both clearer and cheaper than a regex engine.
package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PlainKind discriminates the plain (unencrypted) control methods.
type PlainKind int

const (
	PlainInvalid PlainKind = iota
	PlainHealth            // HT
	PlainPubKey            // PK
	PlainFetch             // FC
	PlainSync              // SY <ts>
	PlainJoin              // JN <addr> <version>
	PlainCheck             // CHECK <addr>
)

// PlainMethod is the parsed form of one plain control method.
type PlainMethod struct {
	Kind    PlainKind
	Ts      int64
	Addr    string
	Version *semver.Version
}

// ParsePlain tokenizes a plain method record. Malformed input returns a
// PlainMethod with Kind == PlainInvalid; callers treat that as a protocol
// violation and close the connection, per spec kind 2.
func ParsePlain(b []byte) PlainMethod {
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return PlainMethod{Kind: PlainInvalid}
	}

	switch fields[0] {
	case "HT":
		if len(fields) != 1 {
			return PlainMethod{Kind: PlainInvalid}
		}
		return PlainMethod{Kind: PlainHealth}

	case "PK":
		if len(fields) != 1 {
			return PlainMethod{Kind: PlainInvalid}
		}
		return PlainMethod{Kind: PlainPubKey}

	case "FC":
		if len(fields) != 1 {
			return PlainMethod{Kind: PlainInvalid}
		}
		return PlainMethod{Kind: PlainFetch}

	case "SY":
		if len(fields) != 2 {
			return PlainMethod{Kind: PlainInvalid}
		}
		ts, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return PlainMethod{Kind: PlainInvalid}
		}
		return PlainMethod{Kind: PlainSync, Ts: ts}

	case "JN":
		if len(fields) != 3 {
			return PlainMethod{Kind: PlainInvalid}
		}
		v, err := semver.NewVersion(fields[2])
		if err != nil {
			return PlainMethod{Kind: PlainInvalid}
		}
		return PlainMethod{Kind: PlainJoin, Addr: fields[1], Version: v}

	case "CHECK":
		if len(fields) != 2 {
			return PlainMethod{Kind: PlainInvalid}
		}
		return PlainMethod{Kind: PlainCheck, Addr: fields[1]}

	default:
		return PlainMethod{Kind: PlainInvalid}
	}
}

// Encode renders the method back to its wire form.
func (m PlainMethod) Encode() []byte {
	switch m.Kind {
	case PlainHealth:
		return []byte("HT")
	case PlainPubKey:
		return []byte("PK")
	case PlainFetch:
		return []byte("FC")
	case PlainSync:
		return []byte(fmt.Sprintf("SY %d", m.Ts))
	case PlainJoin:
		return []byte(fmt.Sprintf("JN %s %s", m.Addr, m.Version.String()))
	case PlainCheck:
		return []byte(fmt.Sprintf("CHECK %s", m.Addr))
	default:
		return []byte("E")
	}
}

// RelyMethod is the encrypted method a gateway sends a node to extend a
// circuit. It is carried as the plaintext of the first RSA-encrypted
// record of a handshake phase, never on the wire unencrypted.
type RelyMethod struct {
	Hop  uint8
	Addr string
	TLS  bool
}

// ParseRely tokenizes "RELY <digit> <host:port> <0|1>". An error return
// means the plaintext is not a valid RELY method — a protocol violation
// per spec kind 2.
func ParseRely(b []byte) (RelyMethod, error) {
	fields := strings.Fields(string(b))
	if len(fields) != 4 || fields[0] != "RELY" {
		return RelyMethod{}, fmt.Errorf("wire: malformed RELY method %q", b)
	}
	if len(fields[1]) != 1 || fields[1][0] < '0' || fields[1][0] > '9' {
		return RelyMethod{}, fmt.Errorf("wire: RELY hop must be a single digit, got %q", fields[1])
	}
	hop := fields[1][0] - '0'

	var tls bool
	switch fields[3] {
	case "0":
		tls = false
	case "1":
		tls = true
	default:
		return RelyMethod{}, fmt.Errorf("wire: RELY tls flag must be 0 or 1, got %q", fields[3])
	}

	return RelyMethod{Hop: hop, Addr: fields[2], TLS: tls}, nil
}

// Encode renders the method as "RELY <hop> <addr> <tls>".
func (m RelyMethod) Encode() []byte {
	tls := 0
	if m.TLS {
		tls = 1
	}
	return []byte(fmt.Sprintf("RELY %d %s %d", m.Hop, m.Addr, tls))
}
