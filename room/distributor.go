package room

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomkey/crypto"
)

// distributeKey wraps the held session key for every participant that
// does not yet have access and pushes it to them. Participants without
// a registered public key are skipped silently; per-recipient RPC
// failures are logged and do not abort the rest of the distribution.
func (km *KeyManager) distributeKey(ctx context.Context) {
	session, ok := km.currentSession()
	if !ok {
		return
	}

	participants, err := km.keys.ParticipantsWithoutKey(ctx, km.roomID)
	if err != nil {
		km.log.WithError(err).Warn("Failed to list participants without key")
		return
	}

	for _, p := range participants {
		if err := km.pushKeyTo(ctx, session, p); err != nil {
			km.log.WithError(err).WithField("recipient", p.UserID).Warn("Failed to push room key")
		}
	}
}

// pushKeyTo wraps the session key under one participant's public key
// and delivers it.
func (km *KeyManager) pushKeyTo(ctx context.Context, session *crypto.SessionKey, p Participant) error {
	if len(p.PublicKey) == 0 {
		km.log.WithField("recipient", p.UserID).Debug("Participant has no public key, skipping")
		return nil
	}
	if len(p.PublicKey) != 32 {
		return fmt.Errorf("participant %s has a %d-byte public key", p.UserID, len(p.PublicKey))
	}

	var pk [32]byte
	copy(pk[:], p.PublicKey)

	wrapped, err := crypto.WrapSessionKey(session, pk)
	if err != nil {
		return fmt.Errorf("failed to wrap key for %s: %w", p.UserID, err)
	}

	if err := km.keys.PushGroupKey(ctx, km.roomID, p.UserID, wrapped); err != nil {
		return fmt.Errorf("failed to push key to %s: %w", p.UserID, err)
	}

	km.log.WithFields(logrus.Fields{
		"recipient": p.UserID,
		"key_id":    session.ID,
	}).Debug("Pushed room key to participant")
	return nil
}

// ProvideKeyToUser re-runs key distribution in response to a key
// request, but only when the requested key ID matches the held key.
// A stale request naming a rotated key is ignored.
func (km *KeyManager) ProvideKeyToUser(ctx context.Context, keyID string) {
	session, ok := km.currentSession()
	if !ok || session.ID != keyID {
		return
	}
	km.distributeKey(ctx)
}
