package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// KeyPair represents a NaCl crypto_box key pair identifying a user.
// The public half is what other participants wrap room keys to; the
// private half unwraps keys pushed to this user.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random NaCl key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		Public:  *publicKey,
		Private: *privateKey,
	}, nil
}

// FromSecretKey creates a key pair from an existing private key,
// deriving the public half on Curve25519.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	publicKey, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	kp := &KeyPair{Private: secretKey}
	copy(kp.Public[:], publicKey)
	return kp, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	for _, b := range key {
		if b != 0 {
			return false
		}
	}
	return true
}
