package room

import (
	"encoding/json"
	"time"

	"github.com/opd-ai/roomkey/crypto"
)

// MessageTypeE2E marks a message whose Text field carries ciphertext
// (or carried it, once E2EStatus reports "done").
const MessageTypeE2E = "e2e"

// E2E decryption states for a message.
const (
	// StatusPending means the message is encrypted and not yet decrypted
	// locally.
	StatusPending = "pending"
	// StatusDone means the message has been decrypted in place.
	StatusDone = "done"
)

// Message is the subset of a chat message relevant to encryption.
// Messages with Type "e2e" and a status other than "done" are
// ciphertext; everything else is plaintext or handled elsewhere.
type Message struct {
	ID        string
	Text      string
	SenderID  string
	Timestamp time.Time
	Type      string
	E2EStatus string
}

// IsEncrypted reports whether the message body is still ciphertext.
func (m *Message) IsEncrypted() bool {
	return m.Type == MessageTypeE2E && m.E2EStatus != StatusDone
}

// payloadRecord is the canonical plaintext form sealed inside a
// ciphertext: id, text, sender and a millisecond timestamp.
type payloadRecord struct {
	ID        *string `json:"id"`
	Text      *string `json:"text"`
	SenderID  *string `json:"senderId"`
	Timestamp int64   `json:"timestamp"`
}

// encodePayload serializes the encryptable fields of a message.
func encodePayload(m *Message) ([]byte, error) {
	rec := payloadRecord{
		ID:        &m.ID,
		Text:      &m.Text,
		SenderID:  &m.SenderID,
		Timestamp: m.Timestamp.UnixMilli(),
	}
	return json.Marshal(rec)
}

// decodePayload deserializes a decrypted payload, failing with
// crypto.ErrMalformedPlaintext when the bytes lack the expected shape.
func decodePayload(data []byte) (*payloadRecord, error) {
	var rec payloadRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, crypto.ErrMalformedPlaintext
	}
	if rec.ID == nil || rec.Text == nil {
		return nil, crypto.ErrMalformedPlaintext
	}
	return &rec, nil
}
