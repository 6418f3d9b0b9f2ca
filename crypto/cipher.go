package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// NonceSize is the size of the random nonce prepended to every
// encrypted payload.
const NonceSize = 16

// Nonce is a 16-byte value used for payload encryption.
type Nonce [NonceSize]byte

// GenerateNonce creates a cryptographically secure random nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, err
	}
	return nonce, nil
}

// MaxPayloadSize bounds plaintext size to prevent excessive memory usage.
const MaxPayloadSize = 1024 * 1024

// EncryptPayload encrypts a plaintext record under a room's session key.
// The output is an ASCII string: the 12-character key ID followed by the
// base64 encoding of nonce ++ ciphertext ++ tag.
func EncryptPayload(plaintext []byte, key [32]byte, keyID string) (string, error) {
	if len(plaintext) == 0 {
		return "", fmt.Errorf("empty plaintext")
	}
	if len(plaintext) > MaxPayloadSize {
		return "", fmt.Errorf("plaintext too large")
	}
	if len(keyID) != KeyIDLength {
		return "", fmt.Errorf("key ID must be %d characters, got %d", KeyIDLength, len(keyID))
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return "", err
	}

	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce[:], nonce[:], plaintext, nil)
	return keyID + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptPayload decrypts a payload produced by EncryptPayload. The
// embedded key ID must equal the caller-supplied keyID; a mismatch means
// the payload was encrypted under a stale or rotated key and fails with
// ErrNotDecryptable, as does AEAD authentication failure.
func DecryptPayload(payload string, key [32]byte, keyID string) ([]byte, error) {
	if len(payload) < KeyIDLength {
		return nil, ErrNotDecryptable
	}
	if payload[:KeyIDLength] != keyID {
		return nil, ErrNotDecryptable
	}

	sealed, err := base64.StdEncoding.DecodeString(payload[KeyIDLength:])
	if err != nil || len(sealed) <= NonceSize {
		return nil, ErrNotDecryptable
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	var nonce Nonce
	copy(nonce[:], sealed[:NonceSize])
	plaintext, err := aead.Open(nil, nonce[:], sealed[NonceSize:], nil)
	if err != nil {
		return nil, ErrNotDecryptable
	}

	return plaintext, nil
}

// newAEAD builds the AES-256-GCM primitive with the 16-byte nonce size
// the wire format mandates.
func newAEAD(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCMWithNonceSize(block, NonceSize)
}
