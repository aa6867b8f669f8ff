package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// KeySize and IVSize are the AES-256-CBC parameters used for every hop's
// data-plane wrap/unwrap after the handshake establishes them.
const (
	KeySize = 32
	IVSize  = 16

	// KeyIVSize is the length of the combined key|IV handshake payload
	// carried as the second RSA-encrypted record of a hop's handshake.
	KeyIVSize = KeySize + IVSize
)

// GenerateKeyIV produces a fresh random AES-256 key and IV, concatenated as
// key|IV for the handshake payload.
func GenerateKeyIV() ([]byte, error) {
	buf := make([]byte, KeyIVSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptoutil: generate key/IV: %w", err)
	}
	return buf, nil
}

// SplitKeyIV separates a key|IV handshake payload into its two parts.
func SplitKeyIV(b []byte) (key, iv []byte, err error) {
	if len(b) != KeyIVSize {
		return nil, nil, fmt.Errorf("cryptoutil: key/IV payload must be %d bytes, got %d", KeyIVSize, len(b))
	}
	return b[:KeySize], b[KeySize:], nil
}

// Seal encrypts plaintext under AES-256-CBC with PKCS#7 padding.
func Seal(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: aes cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return ct, nil
}

// Open decrypts an AES-256-CBC ciphertext produced by Seal and removes its
// PKCS#7 padding. A malformed ciphertext or padding is a crypto failure per
// error kind 3.
func Open(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: aes cipher: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("cryptoutil: ciphertext not a multiple of block size")
	}
	pt := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ciphertext)
	return pkcs7Unpad(pt)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	padLen := blockSize - len(b)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), b...), padding...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	n := len(b)
	if n == 0 {
		return nil, fmt.Errorf("cryptoutil: empty plaintext")
	}
	padLen := int(b[n-1])
	if padLen == 0 || padLen > n || padLen > aes.BlockSize {
		return nil, fmt.Errorf("cryptoutil: invalid padding")
	}
	for _, p := range b[n-padLen:] {
		if int(p) != padLen {
			return nil, fmt.Errorf("cryptoutil: invalid padding")
		}
	}
	return b[:n-padLen], nil
}
