// Package uuid provides identifier generation and validation for queued submissions.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Queue ids are UUID v7: a 48-bit millisecond timestamp followed by a
// monotonic sequence and random bits, so ids minted within the same
// millisecond still differ and sort by creation time.
var uuidV7Regex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-7[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new UUID v7 string.
// Falls back to v4 if the v7 generator cannot read randomness.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// IsValid checks if a string is a UUID v7 in canonical dashed form.
func IsValid(s string) bool {
	return uuidV7Regex.MatchString(s)
}

// Validate returns an error if the string is not a valid UUID v7.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid UUID v7 format: %q", s)
	}
	return nil
}
