// Package roomkey implements per-room end-to-end encryption for group
// messaging clients.
//
// A room's messages are protected by a shared symmetric session key.
// This package manages that key's lifecycle (create, import, rotate,
// discard), distributes it to participants by wrapping it under each
// participant's asymmetric public key, and encrypts/decrypts message
// payloads transparently. The backing data store and key-distribution
// RPC are collaborator contracts; the store package ships reference
// implementations.
//
// # Getting Started
//
// Create a client with options and enter a room:
//
//	options := roomkey.NewOptions()
//	options.UserID = "alice"
//	options.Identity = identity // the user's long-term key pair
//	options.Store = st
//	options.Keys = keys
//
//	client, err := roomkey.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Kill()
//
//	if _, err := client.EnterRoom("general"); err != nil {
//	    log.Fatal(err)
//	}
//
//	encrypted, err := client.EncryptMessage(ctx, "general", msg)
//
// Entering a room starts its key lifecycle manager: the manager reacts
// to metadata changes from the store, adopting a pushed key, creating a
// fresh one, or requesting the key from other participants as the room
// state dictates. Messages encrypted before the key arrives simply
// block until it does; received ciphertext the client cannot open yet
// stays marked pending and is drained automatically once a usable key
// is adopted.
//
// # Core Types
//
//   - [Client]: facade owning one key lifecycle manager per entered room
//   - [Options]: configuration for creating a Client
//   - [room.KeyManager]: the per-room state machine
//   - [crypto.SessionKey]: the symmetric key triple (key, ID, exported
//     material)
package roomkey
