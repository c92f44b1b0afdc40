package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vcwallet/internal/issuance/client"
	"vcwallet/internal/issuance/models"
	lpmodels "vcwallet/internal/legalperson/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/sentinel"
)

// StartIssuance begins a flow with the issuer selected by req. An
// authorization-code flow returns the authorization redirect; an offer with
// a pre-authorized code returns PreAuth, telling the caller whether to
// collect a PIN. A previous session of identity is replaced.
func (s *Service) StartIssuance(ctx context.Context, identity domain.Identity, req models.StartRequest) (*models.StartResult, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.StartIssuance", trace.WithAttributes(attribute.String("identity", identity.String())))
	defer span.End()

	if (req.LegalPersonDID == "") == (req.OfferURL == "") {
		return nil, dErrors.New(dErrors.CodeValidation, "exactly one of legal_person_did and url is required")
	}

	var (
		lp    *lpmodels.LegalPerson
		offer *models.CredentialOffer
		err   error
	)
	if req.LegalPersonDID != "" {
		lp, err = s.registeredIssuer(ctx, req.LegalPersonDID)
	} else {
		offer, err = s.issuer.ResolveOffer(ctx, req.OfferURL)
		if err == nil {
			lp, err = s.offeringIssuer(ctx, identity, offer.CredentialIssuer)
		}
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	md, err := s.issuer.IssuerMetadata(ctx, lp.URL)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	asMD, err := s.issuer.AuthServerMetadata(ctx, md.AuthorizationServerURL())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !lp.IsRegistered() && len(md.Display) > 0 && md.Display[0].Name != "" {
		lp.FriendlyName = md.Display[0].Name
	}

	session := models.Session{
		ID:                   uuid.New(),
		UserIdentity:         identity,
		IssuerMetadata:       *md,
		AuthServerMetadata:   *asMD,
		LegalPerson:          *lp,
		AuthorizationDetails: authorizationDetails(md, offer),
		CreatedAt:            s.now(),
	}
	if offer != nil {
		session.IssuerState = offer.IssuerState()
	}

	if offer != nil && offer.Grants.PreAuthorizedCode != nil {
		grant := offer.Grants.PreAuthorizedCode
		session.GrantType = models.GrantPreAuthorizedCode
		session.Code = grant.PreAuthorizedCode
		s.putSession(ctx, session)
		return &models.StartResult{PreAuth: true, AskForPin: grant.PinRequired()}, nil
	}

	if asMD.AuthorizationEndpoint == "" {
		return nil, dErrors.New(dErrors.CodeUpstream, "authorization server metadata has no authorization_endpoint")
	}
	session.GrantType = models.GrantAuthorizationCode
	session.CodeVerifier = client.NewCodeVerifier()
	redirect, err := client.AuthorizationURL(client.AuthorizationRequest{
		AuthorizationEndpoint: asMD.AuthorizationEndpoint,
		ClientID:              lp.ClientID,
		RedirectURI:           s.redirectURI(),
		AuthorizationDetails:  session.AuthorizationDetails,
		IssuerState:           session.IssuerState,
		ClientMetadata:        client.WalletClientMetadata(s.cfg.WalletURL, s.cfg.WalletClientURL),
	}, session.CodeVerifier)
	if err != nil {
		return nil, err
	}
	s.putSession(ctx, session)
	return &models.StartResult{RedirectTo: redirect}, nil
}

func (s *Service) putSession(ctx context.Context, session models.Session) {
	previous, replaced := s.sessions.Put(ctx, session)
	if replaced {
		s.logger.InfoContext(ctx, "issuance_session_replaced",
			"identity", session.UserIdentity.String(),
			"previous_session_id", previous.ID.String(),
		)
	}
	s.metrics.IncIssuanceStarted(string(session.GrantType))
	s.logger.InfoContext(ctx, "issuance_started",
		"identity", session.UserIdentity.String(),
		"session_id", session.ID.String(),
		"issuer", session.LegalPerson.URL,
		"grant_type", string(session.GrantType),
		"credentials", len(session.AuthorizationDetails),
	)
}

func (s *Service) registeredIssuer(ctx context.Context, did string) (*lpmodels.LegalPerson, error) {
	lp, err := s.legalPersons.ByDID(ctx, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "legal person not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "find legal person")
	}
	return lp, nil
}

// offeringIssuer resolves the issuer of an offer, synthesizing an
// unregistered one with identity as client id when the registry has none.
func (s *Service) offeringIssuer(ctx context.Context, identity domain.Identity, issuerURL string) (*lpmodels.LegalPerson, error) {
	lp, err := s.legalPersons.ByURL(ctx, issuerURL)
	switch {
	case err == nil:
		return lp, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return lpmodels.Unregistered(strings.TrimSuffix(issuerURL, "/"), identity), nil
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "find legal person")
	}
}

// authorizationDetails requests the offered credentials, or every supported
// credential when there is no offer.
func authorizationDetails(md *models.IssuerMetadata, offer *models.CredentialOffer) []models.AuthorizationDetail {
	detail := func(format string, types []string) models.AuthorizationDetail {
		return models.AuthorizationDetail{
			Type:      models.AuthorizationDetailType,
			Format:    format,
			Types:     types,
			Locations: []string{md.CredentialIssuer},
		}
	}
	if offer == nil {
		return lo.Map(md.CredentialsSupported, func(c models.SupportedCredential, _ int) models.AuthorizationDetail {
			return detail(c.Format, c.CredentialTypes())
		})
	}

	offered := lo.FilterMap(offer.Credentials, func(c models.OfferedCredential, _ int) (models.AuthorizationDetail, bool) {
		if c.ID == "" {
			return detail(c.Format, c.Types), true
		}
		supported, ok := md.SupportedByID(c.ID)
		return detail(supported.Format, supported.CredentialTypes()), ok
	})
	byConfigID := lo.FilterMap(offer.CredentialConfigurationIDs, func(id string, _ int) (models.AuthorizationDetail, bool) {
		supported, ok := md.SupportedByID(id)
		return detail(supported.Format, supported.CredentialTypes()), ok
	})
	return append(offered, byConfigID...)
}

// IssuerState returns the issuer state of identity's current session.
func (s *Service) IssuerState(ctx context.Context, identity domain.Identity) (string, error) {
	session, err := s.session(ctx, identity)
	if err != nil {
		return "", err
	}
	if session.IssuerState == "" {
		return "", dErrors.New(dErrors.CodeNotFound, "no issuer_state in session")
	}
	return session.IssuerState, nil
}

// AvailableCredentials lists the credentials a registered issuer supports.
func (s *Service) AvailableCredentials(ctx context.Context, legalPersonDID string) ([]models.AvailableCredential, error) {
	lp, err := s.registeredIssuer(ctx, legalPersonDID)
	if err != nil {
		return nil, err
	}
	md, err := s.metadata.IssuerMetadata(ctx, lp.URL)
	if err != nil {
		return nil, err
	}
	return lo.Map(md.CredentialsSupported, func(c models.SupportedCredential, _ int) models.AvailableCredential {
		name := c.ID
		if len(c.Display) > 0 && c.Display[0].Name != "" {
			name = c.Display[0].Name
		}
		return models.AvailableCredential{ID: c.ID, DisplayName: name}
	}), nil
}

func (s *Service) session(ctx context.Context, identity domain.Identity) (models.Session, error) {
	session, err := s.sessions.Get(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Session{}, dErrors.Wrap(err, dErrors.CodeNotFound, "no issuance session")
		}
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "load issuance session")
	}
	return session, nil
}
