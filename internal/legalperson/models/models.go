package models

import (
	"net/url"

	"vcwallet/pkg/domain"
)

// UnregisteredID marks a legal person synthesized for an issuer that is not
// in the registry.
const UnregisteredID int64 = -1

// LegalPerson is a credential issuer known to the wallet, either registered
// or discovered through a credential offer.
type LegalPerson struct {
	ID           int64
	DID          string
	URL          string
	FriendlyName string
	ClientID     string
	ClientSecret string
}

// IsRegistered reports whether the issuer came from the registry.
func (l *LegalPerson) IsRegistered() bool {
	return l.ID != UnregisteredID
}

// Unregistered synthesizes an issuer record for an offer from an unknown
// issuer. The holder's own identity doubles as the OAuth client id.
func Unregistered(issuerURL string, holder domain.Identity) *LegalPerson {
	name := issuerURL
	if u, err := url.Parse(issuerURL); err == nil && u.Host != "" {
		name = u.Host
	}
	return &LegalPerson{
		ID:           UnregisteredID,
		URL:          issuerURL,
		FriendlyName: name,
		ClientID:     holder.String(),
	}
}
