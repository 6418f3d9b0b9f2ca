package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/opd-ai/roomkey/room"
)

var (
	bucketRooms         = []byte("rooms")
	bucketSubscriptions = []byte("subscriptions")
	bucketMessages      = []byte("messages")
)

// BoltStore is a persistent implementation of room.Store over bbolt.
// Records are JSON-encoded; watcher fan-out is kept in memory, so
// watches do not survive process restarts (re-established on Start of
// the observers, like any reactive subscription).
type BoltStore struct {
	db *bolt.DB

	mu        sync.Mutex
	watchers  map[string]map[int]func()
	nextWatch int
}

// NewBolt opens (or creates) a bolt database at path and prepares the
// schema buckets.
func NewBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRooms, bucketSubscriptions, bucketMessages} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare bolt schema: %w", err)
	}

	return &BoltStore{
		db:       db,
		watchers: make(map[string]map[int]func()),
	}, nil
}

// Close releases the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// UpsertRoom stores a room record and notifies watchers.
func (s *BoltStore) UpsertRoom(r *room.Room) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketRooms), []byte(r.ID), r)
	})
	if err != nil {
		return err
	}
	s.notify(r.ID)
	return nil
}

// UpsertSubscription stores a subscription record and notifies watchers.
func (s *BoltStore) UpsertSubscription(sub *room.Subscription) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketSubscriptions), subKey(sub.RoomID, sub.UserID), sub)
	})
	if err != nil {
		return err
	}
	s.notify(sub.RoomID)
	return nil
}

// AddMessage appends a message to a room, assigning an ID when the
// message has none, and updates the room's last-message projection.
func (s *BoltStore) AddMessage(roomID string, msg *room.Message) (*room.Message, error) {
	c := *msg
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(roomID))
		if err != nil {
			return err
		}
		if err := putJSON(mb, []byte(c.ID), &c); err != nil {
			return err
		}

		rb := tx.Bucket(bucketRooms)
		var r room.Room
		if ok, err := getJSON(rb, []byte(roomID), &r); err != nil {
			return err
		} else if ok {
			last := c
			r.LastMessage = &last
			return putJSON(rb, []byte(roomID), &r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(roomID)
	return &c, nil
}

// FindRoom implements room.Store.
func (s *BoltStore) FindRoom(ctx context.Context, roomID string) (*room.Room, error) {
	var r room.Room
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketRooms), []byte(roomID), &r)
		found = ok
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

// FindSubscription implements room.Store.
func (s *BoltStore) FindSubscription(ctx context.Context, roomID, userID string) (*room.Subscription, error) {
	var sub room.Subscription
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketSubscriptions), subKey(roomID, userID), &sub)
		found = ok
		return err
	})
	if err != nil || !found {
		return nil, err
	}
	return &sub, nil
}

// FindPendingMessages implements room.Store.
func (s *BoltStore) FindPendingMessages(ctx context.Context, roomID string) ([]*room.Message, error) {
	var out []*room.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		mb := tx.Bucket(bucketMessages).Bucket([]byte(roomID))
		if mb == nil {
			return nil
		}
		return mb.ForEach(func(_, v []byte) error {
			var msg room.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			if msg.Type == room.MessageTypeE2E && msg.E2EStatus == room.StatusPending {
				out = append(out, &msg)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMessage implements room.Store.
func (s *BoltStore) UpdateMessage(ctx context.Context, roomID string, msg *room.Message) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		mb, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(roomID))
		if err != nil {
			return err
		}
		return putJSON(mb, []byte(msg.ID), msg)
	})
	if err != nil {
		return err
	}
	s.notify(roomID)
	return nil
}

// UpdateRoomLastMessage implements room.Store.
func (s *BoltStore) UpdateRoomLastMessage(ctx context.Context, roomID string, msg *room.Message) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		rb := tx.Bucket(bucketRooms)
		var r room.Room
		ok, err := getJSON(rb, []byte(roomID), &r)
		if err != nil || !ok {
			return err
		}
		r.LastMessage = msg
		return putJSON(rb, []byte(roomID), &r)
	})
	if err != nil {
		return err
	}
	s.notify(roomID)
	return nil
}

// UpdateSubscriptionLastMessage implements room.Store.
func (s *BoltStore) UpdateSubscriptionLastMessage(ctx context.Context, roomID, userID string, msg *room.Message) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		sb := tx.Bucket(bucketSubscriptions)
		var sub room.Subscription
		ok, err := getJSON(sb, subKey(roomID, userID), &sub)
		if err != nil || !ok {
			return err
		}
		sub.LastMessage = msg
		return putJSON(sb, subKey(roomID, userID), &sub)
	})
	if err != nil {
		return err
	}
	s.notify(roomID)
	return nil
}

// WatchRoom implements room.Store.
func (s *BoltStore) WatchRoom(roomID string, fn func()) (room.CancelFunc, error) {
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

// notify invokes a room's watchers outside the lock.
func (s *BoltStore) notify(roomID string) {
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

func subKey(roomID, userID string) []byte {
	return []byte(roomID + "/" + userID)
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// getJSON reads and decodes one record, reporting whether it existed.
func getJSON(b *bolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}
