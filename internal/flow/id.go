package flow

import "github.com/google/uuid"

// NewID returns a random flow id with the given prefix.
func NewID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
