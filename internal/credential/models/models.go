package models

import (
	"time"

	"vcwallet/pkg/domain"
)

// Record is an accepted verifiable credential held in the wallet, enriched
// with the display data shown by wallet clients.
type Record struct {
	CredentialIdentifier domain.CredentialID `json:"credentialIdentifier"`
	HolderDID            string              `json:"holderDID"`
	IssuerDID            string              `json:"issuerDID"`
	IssuerURL            string              `json:"issuerURL"`
	IssuerFriendlyName   string              `json:"issuerFriendlyName"`
	Credential           string              `json:"credential"`
	Format               string              `json:"format"`
	LogoURL              string              `json:"logoURL"`
	BackgroundColor      string              `json:"backgroundColor"`
	IssuanceDate         time.Time           `json:"issuanceDate"`
}
