// Package domain contains the conference aggregate and its entities.
// Nothing here performs I/O; all mutation happens inside a session actor.
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// Identity is the caller as resolved by the identity collaborator.
type Identity struct {
	UserID      UserID `json:"id"`
	DisplayName string `json:"display_name"`
	Guest       bool   `json:"guest"`
	// CanRecord is the static recording entitlement.
	CanRecord bool `json:"-"`
}

// NormalizeDisplayName trims and validates a display name.
func NormalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if len(name) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return name, nil
}
