package domain

import (
	"errors"
	"regexp"
	"sort"
	"strings"
)

// UserID is a self-chosen identity: ten digits followed by two to four
// lowercase letters, e.g. "9876543210ab".
type UserID string

// String returns the string form of the user ID.
func (u UserID) String() string { return string(u) }

// ChatID identifies a two-party conversation independent of who initiated it.
type ChatID string

// String returns the string form of the chat ID.
func (c ChatID) String() string { return string(c) }

// ErrInvalidUserID is returned when a user ID does not match the canonical shape.
var ErrInvalidUserID = errors.New("user id must be 10 digits followed by 2-4 letters")

var userIDPattern = regexp.MustCompile(`^[0-9]{10}[a-z]{2,4}$`)

// ParseUserID canonicalises raw to lowercase and validates its shape.
func ParseUserID(raw string) (UserID, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !userIDPattern.MatchString(s) {
		return "", ErrInvalidUserID
	}
	return UserID(s), nil
}

// CanonicalChatID returns the order-independent conversation key for a and b.
// CanonicalChatID(a, b) == CanonicalChatID(b, a) for all pairs.
func CanonicalChatID(a, b UserID) ChatID {
	pair := []string{a.String(), b.String()}
	sort.Strings(pair)
	return ChatID(strings.Join(pair, "::"))
}
