package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random UUID, optionally prefixed as "<prefix>_<uuid>".
func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// CompactID is NewID without dashes, for object keys and filenames.
func CompactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
