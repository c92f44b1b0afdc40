package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "vcwallet/pkg/domain-errors"
)

// Identity is the opaque subject identifier of a wallet holder. Sessions,
// signing connections and keystore calls are keyed by it.
type Identity string

// ParseIdentity validates an identity at trust boundaries.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "identity is required")
	}
	return Identity(s), nil
}

func (i Identity) String() string {
	return string(i)
}

// IsNil reports whether the identity is empty.
func (i Identity) IsNil() bool {
	return i == ""
}

// CredentialID identifies a stored verifiable credential.
type CredentialID uuid.UUID

// NewCredentialID returns a random credential identifier.
func NewCredentialID() CredentialID {
	return CredentialID(uuid.New())
}

// ParseCredentialID validates a credential identifier.
func ParseCredentialID(s string) (CredentialID, error) {
	id, err := parseUUID(s, "credential identifier")
	return CredentialID(id), err
}

func (id CredentialID) String() string {
	return uuid.UUID(id).String()
}

// PresentationID identifies a stored verifiable presentation.
type PresentationID uuid.UUID

// NewPresentationID returns a random presentation identifier.
func NewPresentationID() PresentationID {
	return PresentationID(uuid.New())
}

// ParsePresentationID validates a presentation identifier.
func ParsePresentationID(s string) (PresentationID, error) {
	id, err := parseUUID(s, "presentation identifier")
	return PresentationID(id), err
}

func (id PresentationID) String() string {
	return uuid.UUID(id).String()
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is required", what)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "invalid %s", what)
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s cannot be nil", what)
	}
	return id, nil
}
