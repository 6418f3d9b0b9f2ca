package room

// Metadata is the last-observed encryption-relevant snapshot of a room
// for one user, composed from the room and subscription projections of
// the backing store. A nil *Metadata means the room is not eligible for
// end-to-end encryption (no subscription, or neither the encrypted flag
// nor an existing key/key ID).
type Metadata struct {
	UserID              string
	EncryptionRequired  bool
	RoomKeyID           string
	EncryptedKeyForUser string
	LastMessage         *Message
}

// Equal reports whether two snapshots are shallow-equal. The observer
// suppresses change notifications for equal snapshots. LastMessage is
// compared by its semantically relevant fields rather than pointer
// identity because the store materializes a fresh value per query.
func (m *Metadata) Equal(other *Metadata) bool {
	if m == nil || other == nil {
		return m == other
	}
	if m.UserID != other.UserID ||
		m.EncryptionRequired != other.EncryptionRequired ||
		m.RoomKeyID != other.RoomKeyID ||
		m.EncryptedKeyForUser != other.EncryptedKeyForUser {
		return false
	}
	return sameMessage(m.LastMessage, other.LastMessage)
}

func sameMessage(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Text == b.Text && a.E2EStatus == b.E2EStatus
}
