package room

import (
	"context"
	"sync"
)

// mockStore is an in-memory Store for tests. Mutators notify watchers
// outside the lock, mirroring how a reactive store fans out changes.
type mockStore struct {
	mu       sync.Mutex
	room     *Room
	subs     map[string]*Subscription
	messages map[string]*Message
	order    []string
	watchers map[int]func()
	nextID   int

	messageUpdates map[string]int
	roomLastWrites int
	subLastWrites  int
}

func newMockStore() *mockStore {
	return &mockStore{
		subs:           make(map[string]*Subscription),
		messages:       make(map[string]*Message),
		watchers:       make(map[int]func()),
		messageUpdates: make(map[string]int),
	}
}

func (s *mockStore) FindRoom(ctx context.Context, roomID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil || s.room.ID != roomID {
		return nil, nil
	}
	return copyRoom(s.room), nil
}

func (s *mockStore) FindSubscription(ctx context.Context, roomID, userID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok || sub.RoomID != roomID {
		return nil, nil
	}
	return copySub(sub), nil
}

func (s *mockStore) FindPendingMessages(ctx context.Context, roomID string) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, id := range s.order {
		msg := s.messages[id]
		if msg.Type == MessageTypeE2E && msg.E2EStatus == StatusPending {
			c := *msg
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateMessage(ctx context.Context, roomID string, msg *Message) error {
	s.mu.Lock()
	c := *msg
	s.messages[msg.ID] = &c
	s.messageUpdates[msg.ID]++
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *mockStore) UpdateRoomLastMessage(ctx context.Context, roomID string, msg *Message) error {
	s.mu.Lock()
	if s.room != nil {
		c := *msg
		s.room.LastMessage = &c
	}
	s.roomLastWrites++
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *mockStore) UpdateSubscriptionLastMessage(ctx context.Context, roomID, userID string, msg *Message) error {
	s.mu.Lock()
	if sub, ok := s.subs[userID]; ok {
		c := *msg
		sub.LastMessage = &c
	}
	s.subLastWrites++
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *mockStore) WatchRoom(roomID string, fn func()) (CancelFunc, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}, nil
}

// notify invokes all watchers outside the lock.
func (s *mockStore) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *mockStore) setRoom(r *Room) {
	s.mu.Lock()
	s.room = copyRoom(r)
	s.mu.Unlock()
	s.notify()
}

func (s *mockStore) setSubscription(sub *Subscription) {
	s.mu.Lock()
	s.subs[sub.UserID] = copySub(sub)
	s.mu.Unlock()
	s.notify()
}

func (s *mockStore) addMessage(msg *Message) {
	s.mu.Lock()
	c := *msg
	s.messages[msg.ID] = &c
	s.order = append(s.order, msg.ID)
	s.mu.Unlock()
}

func (s *mockStore) message(id string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.messages[id]; ok {
		c := *msg
		return &c
	}
	return nil
}

func (s *mockStore) updateCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageUpdates[id]
}

func (s *mockStore) watcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

func copyRoom(r *Room) *Room {
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

func copySub(s *Subscription) *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	if s.LastMessage != nil {
		m := *s.LastMessage
		c.LastMessage = &m
	}
	return &c
}

// mockKeyService records RPC calls. When writeThrough is set, key
// publication and pushes land in the store the way the real server
// would, triggering metadata changes.
type mockKeyService struct {
	mu           sync.Mutex
	writeThrough *mockStore
	participants []Participant

	setKeyIDCalls []string
	pushes        map[string][]string
	requests      []string

	setKeyIDErr error
	listErr     error
	pushErr     error
}

func newMockKeyService(writeThrough *mockStore) *mockKeyService {
	return &mockKeyService{
		writeThrough: writeThrough,
		pushes:       make(map[string][]string),
	}
}

func (k *mockKeyService) SetRoomKeyID(ctx context.Context, roomID, keyID string) error {
	k.mu.Lock()
	if k.setKeyIDErr != nil {
		err := k.setKeyIDErr
		k.mu.Unlock()
		return err
	}
	k.setKeyIDCalls = append(k.setKeyIDCalls, keyID)
	store := k.writeThrough
	k.mu.Unlock()

	if store != nil {
		store.mu.Lock()
		if store.room != nil {
			store.room.KeyID = keyID
		}
		store.mu.Unlock()
		store.notify()
	}
	return nil
}

func (k *mockKeyService) ParticipantsWithoutKey(ctx context.Context, roomID string) ([]Participant, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.listErr != nil {
		return nil, k.listErr
	}
	return append([]Participant(nil), k.participants...), nil
}

func (k *mockKeyService) PushGroupKey(ctx context.Context, roomID, userID, wrappedKey string) error {
	k.mu.Lock()
	if k.pushErr != nil {
		err := k.pushErr
		k.mu.Unlock()
		return err
	}
	k.pushes[userID] = append(k.pushes[userID], wrappedKey)
	store := k.writeThrough
	k.mu.Unlock()

	if store != nil {
		store.mu.Lock()
		if sub, ok := store.subs[userID]; ok {
			sub.EncryptedKey = wrappedKey
		}
		store.mu.Unlock()
		store.notify()
	}
	return nil
}

func (k *mockKeyService) BroadcastKeyRequest(ctx context.Context, roomID, keyID string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.requests = append(k.requests, keyID)
	return nil
}

func (k *mockKeyService) setKeyIDCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.setKeyIDCalls)
}

func (k *mockKeyService) pushedTo(userID string) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.pushes[userID])
}

func (k *mockKeyService) requestedKeys() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.requests...)
}
