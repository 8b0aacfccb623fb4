package repositories

import "context"

// LiveDialer opens a connection to a realtime speech model
type LiveDialer interface {
	Dial(ctx context.Context) (LiveConnection, error)
}

// LiveConnection is a message-framed full-duplex connection.
// WriteJSON is safe for concurrent use; ReadMessage must be called from a single goroutine.
type LiveConnection interface {
	WriteJSON(v interface{}) error
	ReadMessage() ([]byte, error)
	Close() error
}
