package utils

import (
	"github.com/google/uuid"
)

// GenerateID generates a random entity ID (UUIDv4 string).
func GenerateID() string {
	return uuid.NewString()
}

