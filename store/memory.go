package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opd-ai/roomkey/room"
)

// MemoryStore is a reactive in-memory implementation of room.Store. It
// also implements room.KeyService as a loopback key directory: key IDs
// publish straight into the room record, pushed keys land in the
// recipient's subscription, and both trigger watcher notifications the
// way a server round trip would.
type MemoryStore struct {
	mu         sync.Mutex
	rooms      map[string]*room.Room
	subs       map[string]map[string]*room.Subscription
	messages   map[string]map[string]*room.Message
	order      map[string][]string
	publicKeys map[string][]byte

	watchers     map[string]map[int]func()
	nextWatch    int
	onKeyRequest func(roomID, keyID string)
	requests     []KeyRequest
}

// KeyRequest records one BroadcastKeyRequest call.
type KeyRequest struct {
	RoomID string
	KeyID  string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		rooms:      make(map[string]*room.Room),
		subs:       make(map[string]map[string]*room.Subscription),
		messages:   make(map[string]map[string]*room.Message),
		order:      make(map[string][]string),
		publicKeys: make(map[string][]byte),
		watchers:   make(map[string]map[int]func()),
	}
}

// UpsertRoom stores a room record and notifies watchers.
func (s *MemoryStore) UpsertRoom(r *room.Room) {
	s.mu.Lock()
	s.rooms[r.ID] = copyRoom(r)
	s.mu.Unlock()
	s.notify(r.ID)
}

// UpsertSubscription stores a subscription record and notifies watchers.
func (s *MemoryStore) UpsertSubscription(sub *room.Subscription) {
	s.mu.Lock()
	if s.subs[sub.RoomID] == nil {
		s.subs[sub.RoomID] = make(map[string]*room.Subscription)
	}
	s.subs[sub.RoomID][sub.UserID] = copySubscription(sub)
	s.mu.Unlock()
	s.notify(sub.RoomID)
}

// RemoveSubscription drops a user's subscription, making the room
// ineligible for that user.
func (s *MemoryStore) RemoveSubscription(roomID, userID string) {
	s.mu.Lock()
	if subs := s.subs[roomID]; subs != nil {
		delete(subs, userID)
	}
	s.mu.Unlock()
	s.notify(roomID)
}

// AddMessage appends a message to a room, assigning an ID when the
// message has none, and updates the room's last-message projection.
func (s *MemoryStore) AddMessage(roomID string, msg *room.Message) *room.Message {
	c := *msg
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	s.mu.Lock()
	if s.messages[roomID] == nil {
		s.messages[roomID] = make(map[string]*room.Message)
	}
	s.messages[roomID][c.ID] = &c
	s.order[roomID] = append(s.order[roomID], c.ID)
	if r, ok := s.rooms[roomID]; ok {
		last := c
		r.LastMessage = &last
	}
	s.mu.Unlock()
	s.notify(roomID)

	out := c
	return &out
}

// RegisterPublicKey records a user's asymmetric public key for the
// loopback key directory.
func (s *MemoryStore) RegisterPublicKey(userID string, publicKey []byte) {
	s.mu.Lock()
	s.publicKeys[userID] = append([]byte(nil), publicKey...)
	s.mu.Unlock()
}

// OnKeyRequest registers a callback invoked for every broadcast key
// request, mimicking the room-wide pub/sub channel.
func (s *MemoryStore) OnKeyRequest(fn func(roomID, keyID string)) {
	s.mu.Lock()
	s.onKeyRequest = fn
	s.mu.Unlock()
}

// KeyRequests returns all recorded key requests.
func (s *MemoryStore) KeyRequests() []KeyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]KeyRequest(nil), s.requests...)
}

// Message returns a copy of one message, or nil.
func (s *MemoryStore) Message(roomID, messageID string) *room.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msgs := s.messages[roomID]; msgs != nil {
		if msg, ok := msgs[messageID]; ok {
			c := *msg
			return &c
		}
	}
	return nil
}

// FindRoom implements room.Store.
func (s *MemoryStore) FindRoom(ctx context.Context, roomID string) (*room.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRoom(s.rooms[roomID]), nil
}

// FindSubscription implements room.Store.
func (s *MemoryStore) FindSubscription(ctx context.Context, roomID, userID string) (*room.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subs := s.subs[roomID]; subs != nil {
		return copySubscription(subs[userID]), nil
	}
	return nil, nil
}

// FindPendingMessages implements room.Store.
func (s *MemoryStore) FindPendingMessages(ctx context.Context, roomID string) ([]*room.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*room.Message
	for _, id := range s.order[roomID] {
		msg := s.messages[roomID][id]
		if msg.Type == room.MessageTypeE2E && msg.E2EStatus == room.StatusPending {
			c := *msg
			out = append(out, &c)
		}
	}
	return out, nil
}

// UpdateMessage implements room.Store.
func (s *MemoryStore) UpdateMessage(ctx context.Context, roomID string, msg *room.Message) error {
	s.mu.Lock()
	if s.messages[roomID] == nil {
		s.messages[roomID] = make(map[string]*room.Message)
	}
	if _, known := s.messages[roomID][msg.ID]; !known {
		s.order[roomID] = append(s.order[roomID], msg.ID)
	}
	c := *msg
	s.messages[roomID][msg.ID] = &c
	s.mu.Unlock()
	s.notify(roomID)
	return nil
}

// UpdateRoomLastMessage implements room.Store.
func (s *MemoryStore) UpdateRoomLastMessage(ctx context.Context, roomID string, msg *room.Message) error {
	s.mu.Lock()
	if r, ok := s.rooms[roomID]; ok {
		c := *msg
		r.LastMessage = &c
	}
	s.mu.Unlock()
	s.notify(roomID)
	return nil
}

// UpdateSubscriptionLastMessage implements room.Store.
func (s *MemoryStore) UpdateSubscriptionLastMessage(ctx context.Context, roomID, userID string, msg *room.Message) error {
	s.mu.Lock()
	if subs := s.subs[roomID]; subs != nil {
		if sub, ok := subs[userID]; ok {
			c := *msg
			sub.LastMessage = &c
		}
	}
	s.mu.Unlock()
	s.notify(roomID)
	return nil
}

// WatchRoom implements room.Store.
func (s *MemoryStore) WatchRoom(roomID string, fn func()) (room.CancelFunc, error) {
	s.mu.Lock()
	if s.watchers[roomID] == nil {
		s.watchers[roomID] = make(map[int]func())
	}
	id := s.nextWatch
	s.nextWatch++
	s.watchers[roomID][id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		if ws := s.watchers[roomID]; ws != nil {
			delete(ws, id)
		}
		s.mu.Unlock()
	}, nil
}

// SetRoomKeyID implements room.KeyService (loopback).
func (s *MemoryStore) SetRoomKeyID(ctx context.Context, roomID, keyID string) error {
	s.mu.Lock()
	if r, ok := s.rooms[roomID]; ok {
		r.KeyID = keyID
	}
	s.mu.Unlock()
	s.notify(roomID)
	return nil
}

// ParticipantsWithoutKey implements room.KeyService (loopback): the
// subscribers whose subscription carries no wrapped key yet.
func (s *MemoryStore) ParticipantsWithoutKey(ctx context.Context, roomID string) ([]room.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []room.Participant
	for userID, sub := range s.subs[roomID] {
		if sub.EncryptedKey != "" {
			continue
		}
		out = append(out, room.Participant{
			UserID:    userID,
			PublicKey: append([]byte(nil), s.publicKeys[userID]...),
		})
	}
	return out, nil
}

// PushGroupKey implements room.KeyService (loopback): the wrapped key
// lands in the recipient's subscription, surfacing as a metadata change
// on their side.
func (s *MemoryStore) PushGroupKey(ctx context.Context, roomID, userID, wrappedKey string) error {
	s.mu.Lock()
	if subs := s.subs[roomID]; subs != nil {
		if sub, ok := subs[userID]; ok {
			sub.EncryptedKey = wrappedKey
		}
	}
	s.mu.Unlock()
	s.notify(roomID)
	return nil
}

// BroadcastKeyRequest implements room.KeyService (loopback).
func (s *MemoryStore) BroadcastKeyRequest(ctx context.Context, roomID, keyID string) error {
	s.mu.Lock()
	s.requests = append(s.requests, KeyRequest{RoomID: roomID, KeyID: keyID})
	fn := s.onKeyRequest
	s.mu.Unlock()

	if fn != nil {
		fn(roomID, keyID)
	}
	return nil
}

// notify invokes a room's watchers outside the lock.
func (s *MemoryStore) notify(roomID string) {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.watchers[roomID]))
	for _, fn := range s.watchers[roomID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func copyRoom(r *room.Room) *room.Room {
	if r == nil {
		return nil
	}
	c := *r
	if r.LastMessage != nil {
		m := *r.LastMessage
		c.LastMessage = &m
	}
	return &c
}

func copySubscription(sub *room.Subscription) *room.Subscription {
	if sub == nil {
		return nil
	}
	c := *sub
	if sub.LastMessage != nil {
		m := *sub.LastMessage
		c.LastMessage = &m
	}
	return &c
}
