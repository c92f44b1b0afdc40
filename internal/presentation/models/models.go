package models

import (
	"slices"
	"time"

	"vcwallet/pkg/domain"
)

// Record is a verifiable presentation the holder produced and kept.
type Record struct {
	PresentationIdentifier domain.PresentationID `json:"presentationIdentifier"`
	HolderDID              string                `json:"holderDID"`
	Presentation           string                `json:"presentation"`
	Format                 string                `json:"format"`
	AudienceDID            string                `json:"audienceDID,omitempty"`
	IncludedCredentials    []string              `json:"includedVerifiableCredentialIdentifiers"`
	IssuanceDate           time.Time             `json:"issuanceDate"`
}

// Includes reports whether the presentation disclosed credentialID.
func (r *Record) Includes(credentialID string) bool {
	return slices.Contains(r.IncludedCredentials, credentialID)
}
