package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/box"
)

// WrapSessionKey asymmetrically encrypts a session key's exported
// material for a single participant using an anonymous sealed box under
// the recipient's public key. The output is the 12-character key ID
// followed by the base64 encoding of the sealed bytes.
func WrapSessionKey(key *SessionKey, recipientPublicKey [32]byte) (string, error) {
	if key == nil {
		return "", fmt.Errorf("no session key to wrap")
	}

	sealed, err := box.SealAnonymous(nil, []byte(key.Exported), &recipientPublicKey, rand.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to seal session key: %w", err)
	}

	return key.ID + base64.StdEncoding.EncodeToString(sealed), nil
}

// UnwrapSessionKey recovers a session key from its wrapped form using
// the recipient's key pair. The returned key carries the ID re-derived
// from the recovered material; callers must compare it against the
// room's published key ID before adopting the key.
func UnwrapSessionKey(wrapped string, keyPair *KeyPair) (*SessionKey, error) {
	if keyPair == nil {
		return nil, fmt.Errorf("no key pair to unwrap with")
	}
	if len(wrapped) <= KeyIDLength {
		return nil, ErrInvalidWrappedKey
	}

	sealed, err := base64.StdEncoding.DecodeString(wrapped[KeyIDLength:])
	if err != nil {
		return nil, ErrInvalidWrappedKey
	}

	exported, ok := box.OpenAnonymous(nil, sealed, &keyPair.Public, &keyPair.Private)
	if !ok {
		return nil, fmt.Errorf("failed to open wrapped session key")
	}

	return SessionKeyFromExported(string(exported))
}

// WrappedKeyID returns the key ID prefix a wrapped key claims to carry.
func WrappedKeyID(wrapped string) (string, error) {
	if len(wrapped) <= KeyIDLength {
		return "", ErrInvalidWrappedKey
	}
	return wrapped[:KeyIDLength], nil
}
