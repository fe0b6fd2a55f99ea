package chathub

import "marketchat/backend/internal/models"

// Client is one live connection as seen by the hub. Implementations must be
// safe for concurrent use: the router delivers from many goroutines.
type Client interface {
	// GetID returns the connection id, unique per socket.
	GetID() string
	// GetUserID returns the authenticated user, or "" when the connection
	// was accepted without a token.
	GetUserID() string

	// Deliver queues an event for the connection without blocking. It
	// returns false when the event was dropped because the connection's
	// buffer is full or the connection is closed.
	Deliver(ev models.Event) bool

	// Close releases the connection. It is idempotent.
	Close()
}
