package room

import (
	"context"
	"fmt"

	"github.com/opd-ai/roomkey/crypto"
)

// EncryptMessage encrypts a message for sending. It is a pass-through
// when the room's metadata does not require encryption or the message
// is already of type "e2e". Otherwise it blocks until a session key is
// available, stamps a server-adjusted timestamp, encrypts the payload
// and returns a copy retagged as type "e2e" with status "pending"
// (encrypted locally, not yet confirmed decryptable by recipients).
func (km *KeyManager) EncryptMessage(ctx context.Context, msg *Message) (*Message, error) {
	if msg == nil {
		return nil, nil
	}

	meta := km.snapshotMeta()
	if meta == nil || !meta.EncryptionRequired || msg.Type == MessageTypeE2E {
		return msg, nil
	}

	session, err := km.keyWaiter.Await(ctx)
	if err != nil {
		return nil, err
	}

	out := *msg
	out.Timestamp = km.time.Now().Add(km.clockOffset)

	plaintext, err := encodePayload(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	ciphertext, err := crypto.EncryptPayload(plaintext, session.Key, session.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message: %w", err)
	}

	out.Text = ciphertext
	out.Type = MessageTypeE2E
	out.E2EStatus = StatusPending
	return &out, nil
}
