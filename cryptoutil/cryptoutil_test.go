package cryptoutil

import (
	"bytes"
	"testing"
)

func TestRSARoundTrip(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	der := EncodePublicKey(&priv.PublicKey)
	pub, err := DecodePublicKey(der)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := Encrypt(pub, []byte("RELY 0 127.0.0.1:4000 1"))
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(priv, ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "RELY 0 127.0.0.1:4000 1" {
		t.Fatalf("unexpected plaintext: %q", pt)
	}
}

func TestAESRoundTrip(t *testing.T) {
	keyIV, err := GenerateKeyIV()
	if err != nil {
		t.Fatal(err)
	}
	key, iv, err := SplitKeyIV(keyIV)
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")
	ct, err := Seal(key, iv, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Open(key, iv, ct)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", pt, plaintext)
	}
}

func TestAESEmptyPlaintext(t *testing.T) {
	keyIV, _ := GenerateKeyIV()
	key, iv, _ := SplitKeyIV(keyIV)
	ct, err := Seal(key, iv, nil)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Open(key, iv, ct)
	if err != nil {
		t.Fatal(err)
	}
	if len(pt) != 0 {
		t.Fatalf("expected empty plaintext, got %q", pt)
	}
}

func TestAESTamperedCiphertextRejected(t *testing.T) {
	keyIV, _ := GenerateKeyIV()
	key, iv, _ := SplitKeyIV(keyIV)
	ct, _ := Seal(key, iv, []byte("hello world"))
	ct[0] ^= 0xFF
	if _, err := Open(key, iv, ct); err == nil {
		t.Fatal("expected error decrypting tampered ciphertext")
	}
}

func TestSplitKeyIVWrongSize(t *testing.T) {
	if _, _, err := SplitKeyIV([]byte("too short")); err == nil {
		t.Fatal("expected error for wrong-sized payload")
	}
}

func TestChallengeRoundTrip(t *testing.T) {
	priv, err := GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	nonce, envelope, err := NewChallenge(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	echoed, err := Decrypt(priv, envelope)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyChallenge(nonce, echoed) {
		t.Fatal("expected challenge to verify")
	}
	if VerifyChallenge(nonce, []byte("wrong")) {
		t.Fatal("expected mismatched response to fail verification")
	}
}
