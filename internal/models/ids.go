package models

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NewID returns a fresh 24 character lowercase hex identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// IsID reports whether s is shaped like an identifier (24 hex characters).
func IsID(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := primitive.ObjectIDFromHex(s)
	return err == nil
}

// NormalizeID lower-cases an identifier supplied by a client.
func NormalizeID(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
