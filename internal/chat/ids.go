package chat

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewSessionID returns a random UUID for a new session.
func NewSessionID() string { return uuid.NewString() }

// NewMessageID returns a ULID so message ids sort in creation order, also
// within the same millisecond.
func NewMessageID() string { return ulid.Make().String() }
