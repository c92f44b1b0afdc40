package models

import (
	"time"

	"vcwallet/pkg/domain"
)

// User is a wallet holder as seen by issuance: the DID credentials are bound
// to, the holder's private keys (local keystore only) and the device tokens
// that receive push notifications.
type User struct {
	Identity     domain.Identity
	DID          string
	Keys         []byte // JWK set, JSON encoded; empty for remote keystore users
	DeviceTokens []string
	CreatedAt    time.Time
}

// HasKeys reports whether a local key pair was generated for the user.
func (u *User) HasKeys() bool {
	return len(u.Keys) > 0
}
