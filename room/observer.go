package room

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// MetadataObserver maintains a live Metadata view for one room by
// re-querying the store on every upstream change and invoking its
// callback only when the new snapshot differs from the previous one.
type MetadataObserver struct {
	store    Store
	roomID   string
	userID   string
	onChange func(*Metadata)

	mu     sync.Mutex
	cancel CancelFunc
	last   *Metadata
	seeded bool
}

// NewMetadataObserver creates an observer for one room and user. The
// callback receives the new snapshot (possibly nil) and runs on the
// store's notification goroutine.
func NewMetadataObserver(store Store, roomID, userID string, onChange func(*Metadata)) *MetadataObserver {
	return &MetadataObserver{
		store:    store,
		roomID:   roomID,
		userID:   userID,
		onChange: onChange,
	}
}

// Start establishes the store watch and evaluates the metadata once
// eagerly. It is idempotent: starting a running observer is a no-op.
func (o *MetadataObserver) Start() error {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return nil
	}

	// Register while still holding the lock so concurrent Start calls
	// cannot both establish a watch and leak one of the handles.
	cancel, err := o.store.WatchRoom(o.roomID, o.evaluate)
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.cancel = cancel
	o.mu.Unlock()

	o.evaluate()
	return nil
}

// Stop cancels the store watch and clears it so a later Start
// re-establishes the subscription.
func (o *MetadataObserver) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.cancel = nil
	o.seeded = false
	o.last = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// evaluate re-queries the store and fires the callback when the new
// snapshot is not shallow-equal to the previous one.
func (o *MetadataObserver) evaluate() {
	meta, err := o.query(context.Background())
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "evaluate",
			"package":  "room",
			"room_id":  o.roomID,
			"error":    err.Error(),
		}).Warn("Failed to query room metadata")
		return
	}

	o.mu.Lock()
	if o.seeded && o.last.Equal(meta) {
		o.mu.Unlock()
		return
	}
	o.last = meta
	o.seeded = true
	o.mu.Unlock()

	o.onChange(meta)
}

// query composes the metadata snapshot from the room and subscription
// projections. Returns nil metadata when the room is not E2EE-eligible.
func (o *MetadataObserver) query(ctx context.Context) (*Metadata, error) {
	sub, err := o.store.FindSubscription(ctx, o.roomID, o.userID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, nil
	}

	rm, err := o.store.FindRoom(ctx, o.roomID)
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, nil
	}

	if !rm.EncryptionRequired && rm.KeyID == "" && sub.EncryptedKey == "" {
		return nil, nil
	}

	return &Metadata{
		UserID:              o.userID,
		EncryptionRequired:  rm.EncryptionRequired,
		RoomKeyID:           rm.KeyID,
		EncryptedKeyForUser: sub.EncryptedKey,
		LastMessage:         rm.LastMessage,
	}, nil
}
