package frame

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func pipePair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	return New(a, time.Second), New(b, time.Second)
}

func TestRecordRoundTrip(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	client.SetWriteMode(ModeRecord)
	server.SetReadMode(ModeRecord)

	payload := []byte("hello onion world")
	done := make(chan error, 1)
	go func() { done <- client.WriteFrame(payload) }()

	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, payload)
	}
}

func TestRecordRoundTripEmpty(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	client.SetWriteMode(ModeRecord)
	server.SetReadMode(ModeRecord)

	done := make(chan error, 1)
	go func() { done <- client.WriteFrame(nil) }()

	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(got))
	}
}

func TestRecordOversized(t *testing.T) {
	client, _ := pipePair(t)
	defer client.Close()
	client.SetWriteMode(ModeRecord)
	if err := client.WriteFrame(make([]byte, MaxRecordLen+1)); err == nil {
		t.Fatal("expected error for oversized record")
	}
}

func TestLineRoundTrip(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	client.SetWriteMode(ModeLine)
	server.SetReadMode(ModeLine)

	line := []byte("GET /hello HTTP/1.1")
	done := make(chan error, 1)
	go func() { done <- client.WriteFrame(line) }()

	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, line) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, line)
	}
}

func TestRawDrainsAvailable(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	client.SetWriteMode(ModeRaw)
	server.SetReadMode(ModeRaw)

	payload := []byte("raw tunnel bytes, arbitrary length, no delimiter")
	done := make(chan error, 1)
	go func() { done <- client.WriteFrame(payload) }()

	got, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, payload)
	}
}

func TestReadTimeoutYieldsEOF(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	c := New(b, 20*time.Millisecond)
	c.SetReadMode(ModeRecord)

	_, err := c.ReadFrame()
	if err != io.EOF {
		t.Fatalf("expected io.EOF on timeout, got %v", err)
	}
}

func TestMalformedLengthYieldsEOF(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	server := New(b, time.Second)
	server.SetReadMode(ModeRecord)

	go func() {
		// Claim an absurd length, then hang up.
		_, _ = a.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
		_ = a.Close()
	}()

	_, err := server.ReadFrame()
	if err != io.EOF {
		t.Fatalf("expected io.EOF for oversized length prefix, got %v", err)
	}
}

// FuzzReadRecord drives the record mode's length-prefix boundary parser
// (readRecord) with arbitrary bytes from an untrusted peer. It must never
// panic, and any payload it does return must respect MaxRecordLen.
func FuzzReadRecord(f *testing.F) {
	f.Add([]byte{0x00, 0x00, 0x00, 0x00})
	f.Add([]byte{0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'})
	f.Add([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	f.Add([]byte{0x00, 0x00})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		server := New(b, time.Second)
		server.SetReadMode(ModeRecord)

		go func() {
			_, _ = a.Write(data)
			_ = a.Close()
		}()

		payload, err := server.ReadFrame()
		if err != nil && err != io.EOF {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(payload) > MaxRecordLen {
			t.Fatalf("payload %d exceeds MaxRecordLen %d", len(payload), MaxRecordLen)
		}
	})
}

// FuzzReadLine drives the line mode's CRLF-delimiter boundary parser with
// arbitrary bytes. It must never panic.
func FuzzReadLine(f *testing.F) {
	f.Add([]byte("GET / HTTP/1.1\r\n"))
	f.Add([]byte("\r\n"))
	f.Add([]byte("\n"))
	f.Add([]byte(""))
	f.Add([]byte("no newline at all"))

	f.Fuzz(func(t *testing.T, data []byte) {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		server := New(b, time.Second)
		server.SetReadMode(ModeLine)

		go func() {
			_, _ = a.Write(data)
			_ = a.Close()
		}()

		_, _ = server.ReadFrame()
	})
}

func TestModeSwitchMidStream(t *testing.T) {
	client, server := pipePair(t)
	defer client.Close()
	defer server.Close()

	client.SetWriteMode(ModeLine)
	server.SetReadMode(ModeLine)

	done := make(chan error, 1)
	go func() {
		if err := client.WriteFrame([]byte("CONNECT example.test:443 HTTP/1.1")); err != nil {
			done <- err
			return
		}
		if err := client.WriteFrame(nil); err != nil {
			done <- err
			return
		}
		client.SetWriteMode(ModeRaw)
		done <- client.WriteFrame([]byte{0x16, 0x03, 0x01, 0x00, 0x01})
	}()

	line1, err := server.ReadFrame()
	if err != nil || string(line1) != "CONNECT example.test:443 HTTP/1.1" {
		t.Fatalf("unexpected first line: %q err=%v", line1, err)
	}
	line2, err := server.ReadFrame()
	if err != nil || len(line2) != 0 {
		t.Fatalf("unexpected blank line: %q err=%v", line2, err)
	}
	server.SetReadMode(ModeRaw)
	raw, err := server.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame raw: %v", err)
	}
	if !bytes.Equal(raw, []byte{0x16, 0x03, 0x01, 0x00, 0x01}) {
		t.Fatalf("raw payload mismatch: %v", raw)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
