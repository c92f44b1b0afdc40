package models

import (
	"slices"
	"time"

	"github.com/google/uuid"

	lpmodels "vcwallet/internal/legalperson/models"
	"vcwallet/pkg/domain"
)

// GrantType is the OAuth grant negotiated with the issuer.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantPreAuthorizedCode GrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// Session is the in-memory state of one issuance flow. There is at most one
// per identity. Sessions are values: stores hand out copies and callers
// write changes back through the store.
type Session struct {
	ID                   uuid.UUID
	UserIdentity         domain.Identity
	IssuerMetadata       IssuerMetadata
	AuthServerMetadata   AuthServerMetadata
	LegalPerson          lpmodels.LegalPerson
	GrantType            GrantType
	IssuerState          string
	AuthorizationDetails []AuthorizationDetail
	CodeVerifier         string
	Code                 string
	UserPin              string
	TokenResponse        *TokenResponse
	CreatedAt            time.Time
}

// Clone returns a deep copy of the mutable parts of the session.
func (s Session) Clone() Session {
	c := s
	c.AuthorizationDetails = slices.Clone(s.AuthorizationDetails)
	if s.TokenResponse != nil {
		tr := *s.TokenResponse
		c.TokenResponse = &tr
	}
	return c
}

// Snapshot is what detached work (deferred polling, storage) keeps of a
// session after the session itself has been deleted.
type Snapshot struct {
	SessionID      uuid.UUID
	UserIdentity   domain.Identity
	IssuerMetadata IssuerMetadata
	LegalPerson    lpmodels.LegalPerson
}

// Snapshot captures the fields needed after the session is gone.
func (s Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID:      s.ID,
		UserIdentity:   s.UserIdentity,
		IssuerMetadata: s.IssuerMetadata,
		LegalPerson:    s.LegalPerson,
	}
}

// StartRequest selects the issuer of a new flow: exactly one field is set.
type StartRequest struct {
	LegalPersonDID string
	OfferURL       string
}

// StartResult is either a redirect to the authorization endpoint or a
// pre-authorized flow that may need a PIN.
type StartResult struct {
	RedirectTo string
	PreAuth    bool
	AskForPin  bool
}

// AvailableCredential is a credential an issuer can issue.
type AvailableCredential struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}
