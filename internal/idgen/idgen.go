// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// EventPrefix is prepended to normalized event IDs.
var EventPrefix = "evt-"

// RawEventPrefix is prepended to raw event IDs.
var RawEventPrefix = "raw-"

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 12

// NewEventID returns a new unique normalized event ID.
func NewEventID() (string, error) {
	return GenerateWithPrefix(EventPrefix)
}

// NewRawEventID returns a new unique raw event ID.
func NewRawEventID() (string, error) {
	return GenerateWithPrefix(RawEventPrefix)
}

// GenerateWithPrefix returns a new unique ID with the given prefix.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
