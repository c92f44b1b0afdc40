package models

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Well-known discovery paths.
const (
	CredentialIssuerMetadataPath = "/.well-known/openid-credential-issuer"
	AuthServerMetadataPath       = "/.well-known/openid-configuration"
)

// AuthorizationDetailType is the authorization_details type for credentials.
const AuthorizationDetailType = "openid_credential"

// ProofTypeJWT is the only proof type the wallet produces.
const ProofTypeJWT = "jwt"

// Display is issuer or credential display metadata.
type Display struct {
	Name            string `json:"name,omitempty"`
	Locale          string `json:"locale,omitempty"`
	Logo            *Logo  `json:"logo,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	TextColor       string `json:"text_color,omitempty"`
}

// Logo is a display logo.
type Logo struct {
	URL     string `json:"url,omitempty"`
	AltText string `json:"alt_text,omitempty"`
}

// CredentialDefinition carries credential types in newer metadata drafts.
type CredentialDefinition struct {
	Type []string `json:"type,omitempty"`
}

// SupportedCredential is one entry of the issuer's supported credentials.
type SupportedCredential struct {
	ID                   string                `json:"id,omitempty"`
	Format               string                `json:"format"`
	Types                []string              `json:"types,omitempty"`
	CredentialDefinition *CredentialDefinition `json:"credential_definition,omitempty"`
	Display              []Display             `json:"display,omitempty"`
	BindingMethods       []string              `json:"cryptographic_binding_methods_supported,omitempty"`
}

// CredentialTypes returns the credential types regardless of metadata draft.
func (c SupportedCredential) CredentialTypes() []string {
	if len(c.Types) > 0 {
		return c.Types
	}
	if c.CredentialDefinition != nil {
		return c.CredentialDefinition.Type
	}
	return nil
}

// Matches reports whether the entry describes format and types, in order.
func (c SupportedCredential) Matches(format string, types []string) bool {
	return c.Format == format && slices.Equal(c.CredentialTypes(), types)
}

// IssuerMetadata is the credential issuer discovery document.
type IssuerMetadata struct {
	CredentialIssuer           string                `json:"credential_issuer"`
	AuthorizationServer        string                `json:"authorization_server,omitempty"`
	CredentialEndpoint         string                `json:"credential_endpoint"`
	DeferredCredentialEndpoint string                `json:"deferred_credential_endpoint,omitempty"`
	CredentialsSupported       []SupportedCredential `json:"credentials_supported"`
	Display                    []Display             `json:"display,omitempty"`
}

// UnmarshalJSON accepts credentials_supported both as a list and as an
// object keyed by credential id.
func (m *IssuerMetadata) UnmarshalJSON(data []byte) error {
	type plain IssuerMetadata
	var raw struct {
		plain
		CredentialsSupported json.RawMessage `json:"credentials_supported"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = IssuerMetadata(raw.plain)
	m.CredentialsSupported = nil
	if len(raw.CredentialsSupported) == 0 || string(raw.CredentialsSupported) == "null" {
		return nil
	}
	if raw.CredentialsSupported[0] == '[' {
		return json.Unmarshal(raw.CredentialsSupported, &m.CredentialsSupported)
	}
	var byID map[string]SupportedCredential
	if err := json.Unmarshal(raw.CredentialsSupported, &byID); err != nil {
		return fmt.Errorf("credentials_supported: %w", err)
	}
	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		c := byID[id]
		c.ID = id
		m.CredentialsSupported = append(m.CredentialsSupported, c)
	}
	return nil
}

// AuthorizationServerURL is the authorization server, defaulting to the issuer.
func (m *IssuerMetadata) AuthorizationServerURL() string {
	if m.AuthorizationServer != "" {
		return m.AuthorizationServer
	}
	return m.CredentialIssuer
}

// SupportedByID looks up a supported credential by id.
func (m *IssuerMetadata) SupportedByID(id string) (SupportedCredential, bool) {
	for _, c := range m.CredentialsSupported {
		if c.ID == id {
			return c, true
		}
	}
	return SupportedCredential{}, false
}

// AuthServerMetadata is the OAuth authorization server discovery document.
type AuthServerMetadata struct {
	Issuer                string   `json:"issuer,omitempty"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	JWKSURI               string   `json:"jwks_uri,omitempty"`
	GrantTypesSupported   []string `json:"grant_types_supported,omitempty"`
}

// AuthorizationDetail requests one credential type; one credential request
// is sent per detail.
type AuthorizationDetail struct {
	Type      string   `json:"type"`
	Format    string   `json:"format"`
	Types     []string `json:"types"`
	Locations []string `json:"locations,omitempty"`
}

// TokenResponse is the issuer token endpoint response.
type TokenResponse struct {
	AccessToken     string `json:"access_token"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int64  `json:"expires_in,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int64  `json:"c_nonce_expires_in,omitempty"`
}

// JWTProof is a proof of possession.
type JWTProof struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

// CredentialRequest is the credential endpoint body: the proof plus the
// requested credential type descriptor.
type CredentialRequest struct {
	Proof     JWTProof `json:"proof"`
	Type      string   `json:"type,omitempty"`
	Format    string   `json:"format"`
	Types     []string `json:"types"`
	Locations []string `json:"locations,omitempty"`
}

// NewCredentialRequest binds proofJWT to detail.
func NewCredentialRequest(detail AuthorizationDetail, proofJWT string) CredentialRequest {
	return CredentialRequest{
		Proof:     JWTProof{ProofType: ProofTypeJWT, JWT: proofJWT},
		Type:      detail.Type,
		Format:    detail.Format,
		Types:     detail.Types,
		Locations: detail.Locations,
	}
}

// CredentialResponse is the credential or deferred endpoint response.
type CredentialResponse struct {
	Format          string          `json:"format,omitempty"`
	Credential      json.RawMessage `json:"credential,omitempty"`
	AcceptanceToken string          `json:"acceptance_token,omitempty"`
	CNonce          string          `json:"c_nonce,omitempty"`
	CNonceExpiresIn int64           `json:"c_nonce_expires_in,omitempty"`
}

// IsDeferred reports whether the credential must be polled for.
func (r *CredentialResponse) IsDeferred() bool {
	return r.AcceptanceToken != ""
}

// CredentialString returns the credential when it is a JSON string (JWT
// encodings); ok is false for embedded JSON objects.
func (r *CredentialResponse) CredentialString() (string, bool) {
	var s string
	if err := json.Unmarshal(r.Credential, &s); err != nil {
		return "", false
	}
	return s, s != ""
}
