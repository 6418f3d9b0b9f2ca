package roomkey

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/roomkey/crypto"
	"github.com/opd-ai/roomkey/room"
)

// Options contains configuration for creating a Client.
type Options struct {
	// UserID identifies the local user in store subscriptions and key
	// distribution.
	UserID string

	// Identity is the user's long-term asymmetric key pair, assumed
	// already available (generation and storage are out of scope).
	Identity *crypto.KeyPair

	// Store is the reactive data store holding rooms, subscriptions and
	// messages.
	Store room.Store

	// Keys is the RPC surface for key publication and distribution.
	Keys room.KeyService

	// ClockOffset is the measured offset to the server clock, applied to
	// timestamps stamped on outgoing encrypted messages.
	ClockOffset time.Duration

	// Time overrides the time source for message timestamps. Defaults to
	// the system clock.
	Time crypto.TimeProvider
}

// NewOptions creates a new default Options instance.
func NewOptions() *Options {
	return &Options{}
}

// Client is the main entry point: one key lifecycle manager per entered
// room, sharing the user's identity and collaborators.
type Client struct {
	options *Options

	mu    sync.Mutex
	rooms map[string]*room.KeyManager
}

// New creates a Client from options.
func New(options *Options) (*Client, error) {
	if options == nil {
		return nil, errors.New("options cannot be nil")
	}
	if options.UserID == "" {
		return nil, errors.New("options.UserID is required")
	}
	if options.Identity == nil {
		return nil, errors.New("options.Identity is required")
	}
	if options.Store == nil {
		return nil, errors.New("options.Store is required")
	}
	if options.Keys == nil {
		return nil, errors.New("options.Keys is required")
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"package":  "roomkey",
		"user_id":  options.UserID,
	}).Debug("Creating client")

	return &Client{
		options: options,
		rooms:   make(map[string]*room.KeyManager),
	}, nil
}

// EnterRoom starts the key lifecycle manager for a room, creating it on
// first entry. Entering an already-entered room returns the existing
// manager.
func (c *Client) EnterRoom(roomID string) (*room.KeyManager, error) {
	c.mu.Lock()
	km, ok := c.rooms[roomID]
	if !ok {
		km = room.NewKeyManager(room.Config{
			RoomID:      roomID,
			UserID:      c.options.UserID,
			Identity:    c.options.Identity,
			Store:       c.options.Store,
			Keys:        c.options.Keys,
			ClockOffset: c.options.ClockOffset,
			Time:        c.options.Time,
		})
		c.rooms[roomID] = km
	}
	c.mu.Unlock()

	if err := km.Start(); err != nil {
		return nil, err
	}
	return km, nil
}

// LeaveRoom stops a room's manager and drops it. In-flight lifecycle
// transitions complete on their own; only the metadata subscription is
// cancelled.
func (c *Client) LeaveRoom(roomID string) {
	c.mu.Lock()
	km, ok := c.rooms[roomID]
	delete(c.rooms, roomID)
	c.mu.Unlock()

	if ok {
		km.Stop()
	}
}

// Manager returns the key manager for an entered room.
func (c *Client) Manager(roomID string) (*room.KeyManager, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	km, ok := c.rooms[roomID]
	return km, ok
}

// EncryptMessage encrypts a message for a room, entering the room if
// needed. Blocks until the room's key is available when the room
// requires encryption.
func (c *Client) EncryptMessage(ctx context.Context, roomID string, msg *room.Message) (*room.Message, error) {
	km, err := c.EnterRoom(roomID)
	if err != nil {
		return nil, err
	}
	return km.EncryptMessage(ctx, msg)
}

// DecryptMessage decrypts a message from a room, entering the room if
// needed.
func (c *Client) DecryptMessage(ctx context.Context, roomID string, msg *room.Message, waitForKey bool) (*room.Message, error) {
	km, err := c.EnterRoom(roomID)
	if err != nil {
		return nil, err
	}
	return km.DecryptMessage(ctx, msg, waitForKey)
}

// ProvideKeyToUser answers a key request for a room this client holds
// the key for. Requests naming a different key ID are ignored.
func (c *Client) ProvideKeyToUser(ctx context.Context, roomID, keyID string) {
	if km, ok := c.Manager(roomID); ok {
		km.ProvideKeyToUser(ctx, keyID)
	}
}

// Kill stops all room managers and releases the client.
func (c *Client) Kill() {
	c.mu.Lock()
	managers := make([]*room.KeyManager, 0, len(c.rooms))
	for _, km := range c.rooms {
		managers = append(managers, km)
	}
	c.rooms = make(map[string]*room.KeyManager)
	c.mu.Unlock()

	for _, km := range managers {
		km.Stop()
	}
}
