package utils

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewID returns a random identifier for connections and instances.
func NewID() string {
	return uuid.NewString()
}

// NewSortableID returns an identifier that sorts by creation time, used for
// persisted users and messages.
func NewSortableID() string {
	return ulid.Make().String()
}
