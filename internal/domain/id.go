package domain

import (
	"github.com/google/uuid"
)

// NewID generates a UUIDv7 string for engine-owned records such as
// reconciliation runs. Graph identifiers are supplied by connectors.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
