// Package room implements the per-room end-to-end encryption controller.
//
// This package manages the lifecycle of a room's symmetric session key,
// distributes it to participants using asymmetric cryptography, and
// encrypts/decrypts message payloads transparently. The central type is
// [KeyManager], a per-room state machine driven by metadata changes from
// the backing store:
//
//   - metadata absent: the session key is discarded
//   - held key matches the room's published key ID: the key is valid and
//     pending messages are drained
//   - a wrapped key is available for this user: it is unwrapped with the
//     user's identity key pair and adopted
//   - no key exists room-wide: a fresh key is created, published and
//     distributed to the other participants
//   - a key exists but this client lacks access: a key request is
//     broadcast and the room stays keyless until another participant
//     responds
//
// Example:
//
//	km := room.NewKeyManager(room.Config{
//	    RoomID:   "general",
//	    UserID:   "alice",
//	    Identity: identity,
//	    Store:    store,
//	    Keys:     keys,
//	})
//	if err := km.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer km.Stop()
//
//	encrypted, err := km.EncryptMessage(ctx, msg)
//
// The backing store and key service are collaborator contracts ([Store],
// [KeyService]); the store package provides reference implementations.
package room
