package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomkey/crypto"
	"github.com/opd-ai/roomkey/waiter"
)

// Config carries the explicit identity and collaborators a KeyManager
// is constructed with.
type Config struct {
	RoomID   string
	UserID   string
	Identity *crypto.KeyPair
	Store    Store
	Keys     KeyService

	// ClockOffset is the measured offset to the server clock, applied to
	// timestamps stamped on encrypted messages.
	ClockOffset time.Duration

	// Time is the time source for message timestamps. Defaults to the
	// system clock.
	Time crypto.TimeProvider
}

// KeyManager is the per-room key lifecycle state machine. It owns the
// room's session key: the key triple is mutated only inside the
// manager's own transition handler, never by the distributor or the
// decrypt paths.
type KeyManager struct {
	roomID      string
	userID      string
	identity    *crypto.KeyPair
	store       Store
	keys        KeyService
	clockOffset time.Duration
	time        crypto.TimeProvider

	observer *MetadataObserver

	// mu guards session and meta. The session key is replaced or cleared
	// by whole-pointer swap so the triple stays atomic.
	mu      sync.Mutex
	session *crypto.SessionKey
	meta    *Metadata

	// Single-flight handler state: at most one transition runs at a
	// time; a newer snapshot replaces a not-yet-handled one (latest
	// wins), so rapid metadata churn cannot race two key creations.
	pendingMu   sync.Mutex
	pendingMeta *Metadata
	pendingSet  bool
	handling    bool
	idle        chan struct{}

	keyWaiter   *waiter.Waiter[*crypto.SessionKey]
	keyIDWaiter *waiter.Waiter[string]
	metaWaiter  *waiter.Waiter[*Metadata]

	log *logrus.Entry
}

// NewKeyManager creates a key manager for one room. Start must be
// called before the manager reacts to metadata changes.
func NewKeyManager(cfg Config) *KeyManager {
	if cfg.Time == nil {
		cfg.Time = crypto.DefaultTimeProvider{}
	}

	km := &KeyManager{
		roomID:      cfg.RoomID,
		userID:      cfg.UserID,
		identity:    cfg.Identity,
		store:       cfg.Store,
		keys:        cfg.Keys,
		clockOffset: cfg.ClockOffset,
		time:        cfg.Time,
		idle:        make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"package": "room",
			"room_id": cfg.RoomID,
			"user_id": cfg.UserID,
		}),
	}
	close(km.idle)

	km.keyWaiter = waiter.New(km.currentSession)
	km.keyIDWaiter = waiter.New(km.currentKeyID)
	km.metaWaiter = waiter.New(km.currentMetadata)
	km.observer = NewMetadataObserver(cfg.Store, cfg.RoomID, cfg.UserID, km.onMetadataChanged)

	return km
}

// Start begins observing the room's metadata. Idempotent.
func (km *KeyManager) Start() error {
	return km.observer.Start()
}

// Stop cancels the metadata subscription. An in-flight transition is
// not cancelled and completes on its own.
func (km *KeyManager) Stop() {
	km.observer.Stop()
}

// RoomID returns the room this manager serves.
func (km *KeyManager) RoomID() string { return km.roomID }

// HasKey reports whether a session key is currently held.
func (km *KeyManager) HasKey() bool {
	_, ok := km.currentSession()
	return ok
}

// HasKeyID reports whether a key ID is currently held.
func (km *KeyManager) HasKeyID() bool {
	_, ok := km.currentKeyID()
	return ok
}

// HasExportedMaterial reports whether exported key material is
// currently held.
func (km *KeyManager) HasExportedMaterial() bool {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.session != nil && km.session.Exported != ""
}

// KeyID returns the held key's ID, blocking until a key is available.
func (km *KeyManager) KeyID(ctx context.Context) (string, error) {
	return km.keyIDWaiter.Await(ctx)
}

// Metadata returns the current snapshot, blocking until one exists.
func (km *KeyManager) Metadata(ctx context.Context) (*Metadata, error) {
	return km.metaWaiter.Await(ctx)
}

// currentSession is the waiter getter for the session key.
func (km *KeyManager) currentSession() (*crypto.SessionKey, bool) {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.session, km.session != nil
}

// currentKeyID is the waiter getter for the key ID.
func (km *KeyManager) currentKeyID() (string, bool) {
	km.mu.Lock()
	defer km.mu.Unlock()
	if km.session == nil {
		return "", false
	}
	return km.session.ID, true
}

// currentMetadata is the waiter getter for the metadata snapshot.
func (km *KeyManager) currentMetadata() (*Metadata, bool) {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.meta, km.meta != nil
}

// snapshotMeta returns the last-observed metadata without blocking.
func (km *KeyManager) snapshotMeta() *Metadata {
	km.mu.Lock()
	defer km.mu.Unlock()
	return km.meta
}

// onMetadataChanged records the snapshot immediately, then queues it
// for transition handling. Snapshots are handled one at a time; a
// snapshot superseded before its handler ran is dropped.
func (km *KeyManager) onMetadataChanged(meta *Metadata) {
	km.mu.Lock()
	km.meta = meta
	km.mu.Unlock()
	km.metaWaiter.Broadcast()

	km.pendingMu.Lock()
	km.pendingMeta = meta
	km.pendingSet = true
	if km.handling {
		km.pendingMu.Unlock()
		return
	}
	km.handling = true
	km.idle = make(chan struct{})
	km.pendingMu.Unlock()

	go km.runHandler()
}

// runHandler drains queued snapshots until none remain.
func (km *KeyManager) runHandler() {
	for {
		km.pendingMu.Lock()
		if !km.pendingSet {
			km.handling = false
			close(km.idle)
			km.pendingMu.Unlock()
			return
		}
		meta := km.pendingMeta
		km.pendingSet = false
		km.pendingMu.Unlock()

		km.handleMetadataChange(context.Background(), meta)
	}
}

// waitIdle blocks until no transition is running or queued. Test hook.
func (km *KeyManager) waitIdle() {
	for {
		km.pendingMu.Lock()
		idle := km.idle
		running := km.handling
		km.pendingMu.Unlock()
		if !running {
			return
		}
		<-idle
	}
}

// handleMetadataChange is the lifecycle state machine. It decides, in
// order: metadata absent, held key still valid, import a wrapped key,
// create a fresh key, or request the key from other participants.
func (km *KeyManager) handleMetadataChange(ctx context.Context, meta *Metadata) {
	km.mu.Lock()
	held := km.session
	km.mu.Unlock()

	if meta == nil {
		km.discardKey()
		return
	}

	if held != nil && held.ID == meta.RoomKeyID {
		km.log.WithField("key_id", held.ID).Debug("Session key still valid")
		km.drainPending(ctx)
		return
	}

	km.discardKey()

	switch {
	case meta.EncryptedKeyForUser != "":
		if err := km.importKey(ctx, meta); err != nil {
			km.log.WithError(err).Error("Key import failed")
		}
	case meta.RoomKeyID == "":
		if err := km.createKey(ctx); err != nil {
			km.log.WithError(err).Error("Key creation failed")
		}
	default:
		km.requestKey(ctx, meta.RoomKeyID)
	}
}

// importKey unwraps the key pushed to this user and adopts it. The ID
// re-derived from the recovered material must match the room's
// published key ID; a mismatched key is rejected and the manager falls
// back to requesting the key instead of silently adopting a wrong one.
func (km *KeyManager) importKey(ctx context.Context, meta *Metadata) error {
	session, err := crypto.UnwrapSessionKey(meta.EncryptedKeyForUser, km.identity)
	if err != nil {
		return fmt.Errorf("failed to unwrap room key: %w", err)
	}

	if meta.RoomKeyID != "" && session.ID != meta.RoomKeyID {
		km.log.WithFields(logrus.Fields{
			"derived_key_id":   session.ID,
			"published_key_id": meta.RoomKeyID,
		}).Warn("Imported key does not match published key ID, requesting key")
		km.requestKey(ctx, meta.RoomKeyID)
		return nil
	}

	km.adoptKey(session)
	km.log.WithField("key_id", session.ID).Info("Imported room key")
	km.drainPending(ctx)
	return nil
}

// createKey generates a fresh session key, publishes its ID to the
// room, adopts it and distributes it to the other participants.
func (km *KeyManager) createKey(ctx context.Context) error {
	session, err := crypto.GenerateSessionKey()
	if err != nil {
		return fmt.Errorf("failed to generate room key: %w", err)
	}

	if err := km.keys.SetRoomKeyID(ctx, km.roomID, session.ID); err != nil {
		return fmt.Errorf("failed to publish room key ID: %w", err)
	}

	km.adoptKey(session)
	km.log.WithField("key_id", session.ID).Info("Created room key")

	// Distribution failures are logged inside; they never unwind the
	// freshly adopted key.
	km.distributeKey(ctx)
	return nil
}

// requestKey broadcasts a request for an existing room key. No local
// state changes; another participant answers by pushing a wrapped key,
// which surfaces as a later metadata change.
func (km *KeyManager) requestKey(ctx context.Context, keyID string) {
	if err := km.keys.BroadcastKeyRequest(ctx, km.roomID, keyID); err != nil {
		km.log.WithError(err).WithField("key_id", keyID).Warn("Key request broadcast failed")
		return
	}
	km.log.WithField("key_id", keyID).Debug("Requested room key")
}

// adoptKey installs a session key triple atomically and wakes waiters.
func (km *KeyManager) adoptKey(session *crypto.SessionKey) {
	km.mu.Lock()
	km.session = session
	km.mu.Unlock()
	km.broadcastKeyChanged()
}

// discardKey clears the session key triple atomically and wakes waiters
// so in-flight awaiters re-check and block again.
func (km *KeyManager) discardKey() {
	km.mu.Lock()
	had := km.session != nil
	km.session = nil
	km.mu.Unlock()
	if had {
		km.log.Debug("Discarded session key")
	}
	km.broadcastKeyChanged()
}

func (km *KeyManager) broadcastKeyChanged() {
	km.keyWaiter.Broadcast()
	km.keyIDWaiter.Broadcast()
}

// drainPending decrypts the room's last message and any backlog once a
// usable key is held.
func (km *KeyManager) drainPending(ctx context.Context) {
	if err := km.DecryptLastMessage(ctx); err != nil {
		km.log.WithError(err).Warn("Failed to decrypt last message")
	}
	if err := km.DecryptPendingMessages(ctx); err != nil {
		km.log.WithError(err).Warn("Failed to drain pending messages")
	}
}
