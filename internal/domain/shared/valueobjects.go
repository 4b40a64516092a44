package shared

import (
	"strings"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// maxUserIDLength bounds external user identifiers.
const maxUserIDLength = 128

// UserID identifies a learner. It is issued by the identity service and
// treated as opaque by the engine.
type UserID string

// IsValid checks the ID is non-empty and of reasonable length.
func (u UserID) IsValid() bool {
	n := utf8.RuneCountInString(string(u))
	return n > 0 && n <= maxUserIDLength && strings.TrimSpace(string(u)) == string(u)
}

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a UserID with validation.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", ErrInvalidUserID
	}
	return u, nil
}
