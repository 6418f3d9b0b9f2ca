package crypto

import (
	"crypto/rand"
	"encoding/base64"
)

// KeyIDLength is the length of the key identity prefix embedded in every
// ciphertext and wrapped key produced under a session key.
const KeyIDLength = 12

// SessionKey is a room's symmetric key triple: the raw AES-256 key, its
// derived key ID, and the exported key material the ID is derived from.
// The three fields are always populated together; "no key" is represented
// by a nil *SessionKey, never by a partially filled value.
type SessionKey struct {
	Key      [32]byte
	ID       string
	Exported string
}

// GenerateSessionKey creates a fresh random session key and derives its
// key ID from the exported material.
func GenerateSessionKey() (*SessionKey, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	return sessionKeyFromBytes(key), nil
}

// SessionKeyFromExported rebuilds a session key from exported key
// material, re-deriving the key ID. The derived ID is authoritative:
// callers importing a wrapped key must compare it against the room's
// published key ID before adopting the key.
func SessionKeyFromExported(exported string) (*SessionKey, error) {
	raw, err := base64.RawURLEncoding.DecodeString(exported)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKeyMaterial
	}
	var key [32]byte
	copy(key[:], raw)
	return sessionKeyFromBytes(key), nil
}

// sessionKeyFromBytes derives the exported form and key ID from raw key
// bytes. The key ID is the first KeyIDLength characters of the text-safe
// encoding of the key material.
func sessionKeyFromBytes(key [32]byte) *SessionKey {
	exported := base64.RawURLEncoding.EncodeToString(key[:])
	return &SessionKey{
		Key:      key,
		ID:       exported[:KeyIDLength],
		Exported: exported,
	}
}
