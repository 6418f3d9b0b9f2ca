// Package store provides reference implementations of the room.Store
// contract backing the per-room encryption controller.
//
//   - [MemoryStore]: a reactive in-memory store that also implements
//     room.KeyService as a loopback key directory, so a full multi-client
//     key exchange can run in a single process (used heavily in tests
//     and examples)
//   - [BoltStore]: a persistent store over bbolt with in-memory watcher
//     fan-out
//
// Both stores return defensive copies from queries, mirroring a reactive
// data layer that materializes a fresh snapshot per evaluation.
package store
