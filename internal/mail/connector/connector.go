// Package connector talks to the remote report mailbox.
package connector

import (
	"context"
	"time"
)

// Account carries the fields needed to open the report mailbox.
type Account struct {
	Host     string
	Port     int
	Username string
	Password []byte
}

// Message wraps one on-wire RFC822 payload plus mailbox metadata.
type Message struct {
	UID        string
	RemoteID   string
	ReceivedAt time.Time
	SizeBytes  int64
	Raw        []byte
}

// Disposition tells the connector what to do with a message after the
// handler has seen it.
type Disposition int

const (
	// Skip leaves the message on the server so a later cycle can
	// retry it; the cycle continues with the next message.
	Skip Disposition = iota
	// Processed means the payload is durably persisted and the
	// message may be deleted from the mailbox.
	Processed
)

// Handler consumes fetched messages. A returned error aborts the
// remainder of the cycle; the message is left on the server either way
// unless the handler reported Processed.
type Handler interface {
	Handle(ctx context.Context, msg *Message) (Disposition, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *Message) (Disposition, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) (Disposition, error) {
	return f(ctx, msg)
}

// Fetcher implementations stream mailbox messages to a handler.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, account Account, handler Handler) error
}
