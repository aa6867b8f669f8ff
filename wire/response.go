package wire

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// NodeState is a roster node's lifecycle state, as serialized on the wire
// ("A" / "D") and in CHECK responses ("A" / "D" / "E" for unknown).
type NodeState int

const (
	StateActive NodeState = iota
	StatePendingDelete
)

func (s NodeState) String() string {
	if s == StatePendingDelete {
		return "D"
	}
	return "A"
}

// ParseNodeState parses a single-character wire state token.
func ParseNodeState(s string) (NodeState, bool) {
	switch s {
	case "A":
		return StateActive, true
	case "D":
		return StatePendingDelete, true
	default:
		return 0, false
	}
}

// HealthNode is one node tuple in an HT response: "addr state version".
type HealthNode struct {
	Addr    string
	State   NodeState
	Version *semver.Version
}

// EncodeHealthResponse renders "OK <semver> <node>*" for the cloud's own
// version followed by the current roster.
func EncodeHealthResponse(cloudVersion string, nodes []HealthNode) []byte {
	var b strings.Builder
	b.WriteString("OK ")
	b.WriteString(cloudVersion)
	for _, n := range nodes {
		fmt.Fprintf(&b, " %s %s %s", n.Addr, n.State, n.Version.String())
	}
	return []byte(b.String())
}

// ParseHealthResponse parses "OK <semver> (<addr> <state> <version>)*".
func ParseHealthResponse(b []byte) (version string, nodes []HealthNode, ok bool) {
	fields := strings.Fields(string(b))
	if len(fields) < 2 || fields[0] != "OK" {
		return "", nil, false
	}
	version = fields[1]
	rest := fields[2:]
	if len(rest)%3 != 0 {
		return "", nil, false
	}
	for i := 0; i < len(rest); i += 3 {
		st, ok2 := ParseNodeState(rest[i+1])
		if !ok2 {
			return "", nil, false
		}
		v, err := semver.NewVersion(rest[i+2])
		if err != nil {
			return "", nil, false
		}
		nodes = append(nodes, HealthNode{Addr: rest[i], State: st, Version: v})
	}
	return version, nodes, true
}

// FetchNode is one ACTIVE node tuple in an FC response: "addr version".
type FetchNode struct {
	Addr    string
	Version *semver.Version
}

// EncodeFetchResponse renders "<latest_ts> (<addr> <version>)*".
func EncodeFetchResponse(latestTs int64, nodes []FetchNode) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%d", latestTs)
	for _, n := range nodes {
		fmt.Fprintf(&b, " %s %s", n.Addr, n.Version.String())
	}
	return []byte(b.String())
}

// ParseFetchResponse parses "<latest_ts> (<addr> <version>)*".
func ParseFetchResponse(b []byte) (latestTs int64, nodes []FetchNode, ok bool) {
	fields := strings.Fields(string(b))
	if len(fields) == 0 {
		return 0, nil, false
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, nil, false
	}
	rest := fields[1:]
	if len(rest)%2 != 0 {
		return 0, nil, false
	}
	for i := 0; i < len(rest); i += 2 {
		v, err := semver.NewVersion(rest[i+1])
		if err != nil {
			return 0, nil, false
		}
		nodes = append(nodes, FetchNode{Addr: rest[i], Version: v})
	}
	return ts, nodes, true
}

// SyncAudit is one audit tuple in a SY response: "addr state version ts".
type SyncAudit struct {
	Addr    string
	State   NodeState
	Version *semver.Version
	Ts      int64
}

// EncodeSyncResponse renders "(<addr> <state> <version> <ts>)*", the
// caller having already ordered entries newest-first per spec.
func EncodeSyncResponse(audits []SyncAudit) []byte {
	var b strings.Builder
	for i, a := range audits {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s %s %s %d", a.Addr, a.State, a.Version.String(), a.Ts)
	}
	return []byte(b.String())
}

// ParseSyncResponse parses "(<addr> <state> <version> <ts>)*".
func ParseSyncResponse(b []byte) ([]SyncAudit, bool) {
	fields := strings.Fields(string(b))
	if len(fields)%4 != 0 {
		return nil, false
	}
	var audits []SyncAudit
	for i := 0; i < len(fields); i += 4 {
		st, ok := ParseNodeState(fields[i+1])
		if !ok {
			return nil, false
		}
		v, err := semver.NewVersion(fields[i+2])
		if err != nil {
			return nil, false
		}
		ts, err := strconv.ParseInt(fields[i+3], 10, 64)
		if err != nil {
			return nil, false
		}
		audits = append(audits, SyncAudit{Addr: fields[i], State: st, Version: v, Ts: ts})
	}
	return audits, true
}

// CheckResponse renders the single-character CHECK response.
func CheckResponse(state NodeState, found bool) []byte {
	if !found {
		return []byte("E")
	}
	return []byte(state.String())
}

// ParseCheckResponse parses a single-character CHECK response.
func ParseCheckResponse(b []byte) (state NodeState, found bool) {
	s := strings.TrimSpace(string(b))
	if s == "E" {
		return 0, false
	}
	st, ok := ParseNodeState(s)
	if !ok {
		return 0, false
	}
	return st, true
}
