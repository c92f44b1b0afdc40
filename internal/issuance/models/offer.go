package models

import (
	"encoding/json"
	"fmt"
)

// CredentialOffer is the offer an issuer hands to the wallet, inline or by
// reference.
type CredentialOffer struct {
	CredentialIssuer           string              `json:"credential_issuer"`
	Credentials                []OfferedCredential `json:"credentials,omitempty"`
	CredentialConfigurationIDs []string            `json:"credential_configuration_ids,omitempty"`
	Grants                     Grants              `json:"grants,omitempty"`
}

// Grants lists the grants the issuer is prepared to accept.
type Grants struct {
	AuthorizationCode *AuthorizationCodeGrant `json:"authorization_code,omitempty"`
	PreAuthorizedCode *PreAuthorizedCodeGrant `json:"urn:ietf:params:oauth:grant-type:pre-authorized_code,omitempty"`
}

// AuthorizationCodeGrant parameters.
type AuthorizationCodeGrant struct {
	IssuerState string `json:"issuer_state,omitempty"`
}

// PreAuthorizedCodeGrant parameters.
type PreAuthorizedCodeGrant struct {
	PreAuthorizedCode string  `json:"pre-authorized_code"`
	UserPinRequired   bool    `json:"user_pin_required,omitempty"`
	TxCode            *TxCode `json:"tx_code,omitempty"`
}

// TxCode describes the transaction code of newer offer drafts.
type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// PinRequired reports whether the user has to supply a PIN.
func (g *PreAuthorizedCodeGrant) PinRequired() bool {
	return g.UserPinRequired || g.TxCode != nil
}

// IssuerState returns the issuer state of the authorization code grant, if any.
func (o *CredentialOffer) IssuerState() string {
	if o.Grants.AuthorizationCode == nil {
		return ""
	}
	return o.Grants.AuthorizationCode.IssuerState
}

// OfferedCredential is either a credential type descriptor or a reference
// to a supported credential id.
type OfferedCredential struct {
	ID     string
	Format string
	Types  []string
}

func (c *OfferedCredential) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*c = OfferedCredential{ID: id}
		return nil
	}
	var obj struct {
		Format               string                `json:"format"`
		Types                []string              `json:"types"`
		CredentialDefinition *CredentialDefinition `json:"credential_definition"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("offered credential: %w", err)
	}
	types := obj.Types
	if len(types) == 0 && obj.CredentialDefinition != nil {
		types = obj.CredentialDefinition.Type
	}
	*c = OfferedCredential{Format: obj.Format, Types: types}
	return nil
}

func (c OfferedCredential) MarshalJSON() ([]byte, error) {
	if c.ID != "" {
		return json.Marshal(c.ID)
	}
	return json.Marshal(struct {
		Format string   `json:"format"`
		Types  []string `json:"types"`
	}{c.Format, c.Types})
}
