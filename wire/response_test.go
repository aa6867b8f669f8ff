package wire

import (
	"testing"

	"github.com/Masterminds/semver/v3"
)

func TestHealthResponseRoundTrip(t *testing.T) {
	nodes := []HealthNode{
		{Addr: "127.0.0.1:3001", State: StateActive, Version: semver.MustParse("1.0.0")},
		{Addr: "127.0.0.1:3002", State: StatePendingDelete, Version: semver.MustParse("1.0.1")},
	}
	enc := EncodeHealthResponse("0.9.0", nodes)
	version, got, ok := ParseHealthResponse(enc)
	if !ok {
		t.Fatalf("parse failed for %q", enc)
	}
	if version != "0.9.0" || len(got) != 2 {
		t.Fatalf("unexpected parse: %s %+v", version, got)
	}
	if got[1].State != StatePendingDelete {
		t.Fatalf("state mismatch: %+v", got[1])
	}
}

func TestFetchResponseRoundTrip(t *testing.T) {
	nodes := []FetchNode{
		{Addr: "127.0.0.1:3001", Version: semver.MustParse("1.0.0")},
	}
	enc := EncodeFetchResponse(42, nodes)
	ts, got, ok := ParseFetchResponse(enc)
	if !ok || ts != 42 || len(got) != 1 {
		t.Fatalf("unexpected parse: ts=%d got=%+v ok=%v", ts, got, ok)
	}
}

func TestFetchResponseEmptyRoster(t *testing.T) {
	enc := EncodeFetchResponse(0, nil)
	ts, got, ok := ParseFetchResponse(enc)
	if !ok || ts != 0 || len(got) != 0 {
		t.Fatalf("unexpected parse: ts=%d got=%+v ok=%v", ts, got, ok)
	}
}

func TestSyncResponseNewestFirst(t *testing.T) {
	audits := []SyncAudit{
		{Addr: "a", State: StatePendingDelete, Version: semver.MustParse("1.0.0"), Ts: 300},
		{Addr: "b", State: StateActive, Version: semver.MustParse("1.0.0"), Ts: 200},
	}
	enc := EncodeSyncResponse(audits)
	got, ok := ParseSyncResponse(enc)
	if !ok || len(got) != 2 {
		t.Fatalf("parse failed: %+v ok=%v", got, ok)
	}
	if got[0].Ts != 300 || got[1].Ts != 200 {
		t.Fatalf("order not preserved: %+v", got)
	}
}

func TestCheckResponseRoundTrip(t *testing.T) {
	enc := CheckResponse(StateActive, true)
	st, found := ParseCheckResponse(enc)
	if !found || st != StateActive {
		t.Fatalf("unexpected: %v %v", st, found)
	}
	enc = CheckResponse(0, false)
	_, found = ParseCheckResponse(enc)
	if found {
		t.Fatal("expected not found for unknown node")
	}
}
