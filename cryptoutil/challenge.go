package cryptoutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"fmt"
)

// ChallengeNonceSize is the size of the random nonce used to prove a join
// candidate controls the address it claims.
const ChallengeNonceSize = 32

// NewChallenge generates a random nonce and its RSA envelope addressed to
// the candidate's public key. The cloud sends the envelope; only a node
// holding the matching private key can recover and echo back the nonce.
func NewChallenge(pub *rsa.PublicKey) (nonce, envelope []byte, err error) {
	nonce = make([]byte, ChallengeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("cryptoutil: generate challenge nonce: %w", err)
	}
	envelope, err = Encrypt(pub, nonce)
	if err != nil {
		return nil, nil, err
	}
	return nonce, envelope, nil
}

// VerifyChallenge reports whether a candidate's echoed response matches the
// nonce the cloud sent, in constant time.
func VerifyChallenge(nonce, response []byte) bool {
	return len(nonce) == len(response) && subtle.ConstantTimeCompare(nonce, response) == 1
}
