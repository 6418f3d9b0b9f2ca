package room

import (
	"context"
	"errors"
	"time"

	"github.com/opd-ai/roomkey/crypto"
)

// DecryptMessage decrypts an end-to-end encrypted message in place.
// Non-e2e and already-decrypted messages pass through unchanged. With
// waitForKey false the message also passes through when no session key
// is held yet; with waitForKey true the call suspends until a key is
// adopted or the context is cancelled.
//
// A payload sealed under a different key leaves the message pending and
// returns no error; a payload that decrypts to an unexpected shape
// fails with crypto.ErrMalformedPlaintext.
func (km *KeyManager) DecryptMessage(ctx context.Context, msg *Message, waitForKey bool) (*Message, error) {
	if msg == nil || !msg.IsEncrypted() {
		return msg, nil
	}

	var session *crypto.SessionKey
	if waitForKey {
		s, err := km.keyWaiter.Await(ctx)
		if err != nil {
			return nil, err
		}
		session = s
	} else {
		s, ok := km.keyWaiter.GetIfReady()
		if !ok {
			return msg, nil
		}
		session = s
	}

	plaintext, err := crypto.DecryptPayload(msg.Text, session.Key, session.ID)
	if err != nil {
		if errors.Is(err, crypto.ErrNotDecryptable) {
			// Stale or future key: the message stays pending until a
			// matching key is adopted.
			return msg, nil
		}
		return nil, err
	}

	rec, err := decodePayload(plaintext)
	if err != nil {
		return nil, err
	}

	msg.Text = *rec.Text
	if rec.Timestamp != 0 {
		msg.Timestamp = time.UnixMilli(rec.Timestamp)
	}
	msg.E2EStatus = StatusDone
	return msg, nil
}

// DecryptPendingMessages drains the room's backlog: every message still
// marked pending is decrypted best-effort (non-waiting) and each
// message that transitioned is persisted back to the store exactly once.
func (km *KeyManager) DecryptPendingMessages(ctx context.Context) error {
	pending, err := km.store.FindPendingMessages(ctx, km.roomID)
	if err != nil {
		return err
	}

	for _, msg := range pending {
		wasEncrypted := msg.IsEncrypted()
		decrypted, err := km.DecryptMessage(ctx, msg, false)
		if err != nil {
			km.log.WithError(err).WithField("message_id", msg.ID).Warn("Failed to decrypt pending message")
			continue
		}
		if !wasEncrypted || decrypted.IsEncrypted() {
			continue
		}
		if err := km.store.UpdateMessage(ctx, km.roomID, decrypted); err != nil {
			km.log.WithError(err).WithField("message_id", msg.ID).Warn("Failed to persist decrypted message")
		}
	}
	return nil
}

// DecryptLastMessage decrypts the room's cached last message, waiting
// for the key, and persists the result into both the room and
// subscription projections of that field. No-op when the room has no
// last message or it is already decrypted.
func (km *KeyManager) DecryptLastMessage(ctx context.Context) error {
	meta := km.snapshotMeta()
	if meta == nil || meta.LastMessage == nil || !meta.LastMessage.IsEncrypted() {
		return nil
	}

	// The snapshot (and the observer's retained copy of it) must stay
	// immutable, so decrypt a copy and persist that.
	msg := *meta.LastMessage
	decrypted, err := km.DecryptMessage(ctx, &msg, true)
	if err != nil {
		return err
	}
	if decrypted.IsEncrypted() {
		return nil
	}

	if err := km.store.UpdateRoomLastMessage(ctx, km.roomID, decrypted); err != nil {
		return err
	}
	return km.store.UpdateSubscriptionLastMessage(ctx, km.roomID, km.userID, decrypted)
}
