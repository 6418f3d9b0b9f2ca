// Package crypto implements the cryptographic primitives for per-room
// end-to-end encryption.
//
// This package provides the stateless building blocks used by the room
// key lifecycle: AES-256-GCM payload encryption tagged with a short key
// identity, NaCl-based asymmetric wrapping of room keys for individual
// participants, and identity key pairs through Go's x/crypto packages.
//
// # Core Types
//
//   - [SessionKey]: a room's symmetric key triple (raw key, derived key
//     ID, exported key material), always handled as a unit
//   - [KeyPair]: NaCl crypto_box key pair (Curve25519) identifying a user
//   - [Nonce]: 16-byte random nonce prepended to every payload
//
// # Payload Encryption
//
// Payloads are encrypted under a room's session key and carry the key ID
// as a plaintext prefix so receivers can detect stale keys before
// attempting decryption:
//
//	key, _ := crypto.GenerateSessionKey()
//	ciphertext, _ := crypto.EncryptPayload(plaintext, key.Key, key.ID)
//	plaintext, err := crypto.DecryptPayload(ciphertext, key.Key, key.ID)
//
// Decrypting with a mismatched key ID fails with [ErrNotDecryptable];
// callers treat such messages as still pending rather than corrupt.
//
// # Key Wrapping
//
// Room keys travel to participants as anonymous sealed boxes under the
// recipient's public key:
//
//	wrapped, _ := crypto.WrapSessionKey(key, recipientPublicKey)
//	key, err := crypto.UnwrapSessionKey(wrapped, myKeyPair)
//
// The wrapped form carries the same 12-character key ID prefix as the
// ciphertext wire format.
package crypto
