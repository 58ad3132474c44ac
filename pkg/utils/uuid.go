package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateUUID returns a random (v4) UUID string.
func GenerateUUID() string {
	return uuid.NewString()
}

// ValidFingerprintID reports whether id can be used as a store key: non-empty,
// no whitespace and none of the key separators ':' or '/'.
func ValidFingerprintID(id string) bool {
	if id == "" {
		return false
	}
	return !strings.ContainsAny(id, ":/ \t\r\n")
}
