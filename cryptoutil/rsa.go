// Package cryptoutil implements the envelope handshake and per-hop data
// encryption primitives: RSA-2048 keypairs for the envelope, and AES-256-CBC
// for data-plane records once a hop's key is established.
package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// RSABits is the modulus size used for every node and gateway keypair.
const RSABits = 2048

// GenerateKeypair creates a fresh RSA-2048 keypair.
func GenerateKeypair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, RSABits)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: generate RSA key: %w", err)
	}
	return key, nil
}

// EncodePublicKey renders a public key as PKCS1 DER, the form exchanged by
// the PK method.
func EncodePublicKey(pub *rsa.PublicKey) []byte {
	return x509.MarshalPKCS1PublicKey(pub)
}

// DecodePublicKey parses a PKCS1 DER public key received over the wire.
func DecodePublicKey(der []byte) (*rsa.PublicKey, error) {
	pub, err := x509.ParsePKCS1PublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: parse public key: %w", err)
	}
	return pub, nil
}

// Encrypt wraps plaintext in an RSA-PKCS1v15 envelope addressed to pub. Used
// for the RELY method and the AES key|IV handshake payload, both of which
// are well under the modulus's ~245-byte capacity at 2048 bits.
func Encrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plaintext)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: rsa encrypt: %w", err)
	}
	return ct, nil
}

// Decrypt opens an RSA-PKCS1v15 envelope with the node's own private key.
// Failure here is a crypto-failure per error kind 3: the caller closes the
// connection without cascading the failure elsewhere.
func Decrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptPKCS1v15(rand.Reader, priv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: rsa decrypt: %w", err)
	}
	return pt, nil
}
