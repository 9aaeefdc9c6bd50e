// Package bus fans auth-state changes out to every process sharing a
// session, so a sign-out in one place reaches all the others.
package bus

import (
	"context"
	"time"
)

// Message announces that the session stored under ClientKey changed. Origin
// identifies the publishing process so it can skip its own echoes.
type Message struct {
	Origin    string    `json:"origin"`
	ClientKey string    `json:"client_key"`
	Event     string    `json:"event"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}

type Bus interface {
	Publish(ctx context.Context, msg Message) error
	StartForwarder(ctx context.Context, onMsg func(m Message)) error
	Close() error
}
