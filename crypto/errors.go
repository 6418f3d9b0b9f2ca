package crypto

import "errors"

var (
	// ErrNotDecryptable indicates a payload that cannot be opened with the
	// supplied key: either the embedded key ID does not match, or the AEAD
	// authentication failed. Callers should treat the message as still
	// pending, not as corrupt.
	ErrNotDecryptable = errors.New("payload not decryptable with current key")

	// ErrMalformedPlaintext indicates the payload decrypted successfully
	// but the recovered bytes do not have the expected record shape.
	ErrMalformedPlaintext = errors.New("decrypted payload is malformed")

	// ErrInvalidKeyMaterial indicates exported key material that does not
	// decode to a 32-byte key.
	ErrInvalidKeyMaterial = errors.New("invalid exported key material")

	// ErrInvalidWrappedKey indicates a wrapped key that is too short or
	// not valid base64.
	ErrInvalidWrappedKey = errors.New("invalid wrapped key")
)
