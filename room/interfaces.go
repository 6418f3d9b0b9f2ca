package room

import "context"

// Room is the store's projection of a room's encryption state.
type Room struct {
	ID                 string
	EncryptionRequired bool
	KeyID              string
	LastMessage        *Message
}

// Subscription is the store's projection of one user's membership in a
// room, carrying the wrapped session key pushed to that user, if any.
type Subscription struct {
	RoomID       string
	UserID       string
	EncryptedKey string
	LastMessage  *Message
}

// Participant identifies a room member eligible to receive the session
// key. An empty PublicKey means the user has not registered one and is
// silently skipped during distribution.
type Participant struct {
	UserID    string
	PublicKey []byte
}

// CancelFunc cancels a watch registered with Store.WatchRoom.
type CancelFunc func()

// Store is the reactive data store backing a room. Watch callbacks fire
// on every change to the room's state; the observer performs its own
// shallow-equality filtering on top.
type Store interface {
	FindRoom(ctx context.Context, roomID string) (*Room, error)
	FindSubscription(ctx context.Context, roomID, userID string) (*Subscription, error)

	// FindPendingMessages returns the room's messages still awaiting
	// local decryption (type "e2e", status "pending").
	FindPendingMessages(ctx context.Context, roomID string) ([]*Message, error)

	UpdateMessage(ctx context.Context, roomID string, msg *Message) error
	UpdateRoomLastMessage(ctx context.Context, roomID string, msg *Message) error
	UpdateSubscriptionLastMessage(ctx context.Context, roomID, userID string, msg *Message) error

	WatchRoom(roomID string, fn func()) (CancelFunc, error)
}

// KeyService is the RPC surface for key publication, distribution and
// requests. Inbound delivery of a wrapped key for this user surfaces as
// a later store change (the subscription's EncryptedKey becomes set).
type KeyService interface {
	SetRoomKeyID(ctx context.Context, roomID, keyID string) error
	ParticipantsWithoutKey(ctx context.Context, roomID string) ([]Participant, error)
	PushGroupKey(ctx context.Context, roomID, userID, wrappedKey string) error
	BroadcastKeyRequest(ctx context.Context, roomID, keyID string) error
}
