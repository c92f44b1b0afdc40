package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"vcwallet/internal/issuance/client"
	"vcwallet/internal/issuance/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/sentinel"
)

var errNotPreAuthorized = errors.New("session grant is not pre-authorized_code")

// ResumePreAuthorized attaches userPin to the pre-authorized session of
// identity and redeems the code. The credential fan-out runs detached; its
// failures are only logged.
func (s *Service) ResumePreAuthorized(ctx context.Context, identity domain.Identity, userPin string) error {
	ctx, span := s.tracer.Start(ctx, "issuance.ResumePreAuthorized", trace.WithAttributes(attribute.String("identity", identity.String())))
	defer span.End()

	if _, err := s.session(ctx, identity); err != nil {
		return err
	}
	session, err := s.sessions.Update(ctx, identity, func(session *models.Session) error {
		if session.GrantType != models.GrantPreAuthorizedCode {
			return errNotPreAuthorized
		}
		session.UserPin = userPin
		return nil
	})
	if errors.Is(err, errNotPreAuthorized) {
		s.logger.WarnContext(ctx, "pre_authorized_resume_rejected", "identity", identity.String())
		return dErrors.Wrap(err, dErrors.CodeValidation, "session is not pre-authorized")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "no issuance session")
	}

	token, err := s.issuer.ExchangePreAuthorizedCode(ctx, session.AuthServerMetadata.TokenEndpoint, session.Code, userPin)
	if err != nil {
		s.metrics.IncTokenExchange(string(models.GrantPreAuthorizedCode), "rejected")
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "token_exchange_failed",
			"identity", identity.String(),
			"grant_type", string(models.GrantPreAuthorizedCode),
			"error", err,
		)
		if upstream, ok := client.AsUpstream(err); ok && upstream.OAuthErrorCode() == client.ErrorInvalidRequest {
			return dErrors.Wrap(upstream, dErrors.CodeInvalidRequest, "issuer rejected the token request")
		}
		return err
	}
	s.metrics.IncTokenExchange(string(models.GrantPreAuthorizedCode), "ok")

	session, err = s.storeToken(ctx, session, token)
	if err != nil {
		return err
	}
	s.tasks.detach(ctx, identity, func(ctx context.Context) {
		if err := s.fanOut(ctx, session); err != nil {
			s.logger.ErrorContext(ctx, "credential_fanout_failed", "identity", identity.String(), "error", err)
		}
	})
	return nil
}

// HandleAuthorizationCallback redeems the authorization code carried by the
// wallet client's callbackURL. A repeated callback after the code has been
// recorded is a no-op. Token exchange failures are returned; once a token is
// obtained the call succeeds whatever the fan-out does.
func (s *Service) HandleAuthorizationCallback(ctx context.Context, identity domain.Identity, callbackURL string) error {
	ctx, span := s.tracer.Start(ctx, "issuance.HandleAuthorizationCallback", trace.WithAttributes(attribute.String("identity", identity.String())))
	defer span.End()

	u, err := url.Parse(callbackURL)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "malformed callback url")
	}
	code := u.Query().Get("code")
	if code == "" {
		return dErrors.New(dErrors.CodeValidation, "callback url has no code")
	}

	if _, err := s.session(ctx, identity); err != nil {
		return err
	}
	session, recorded, err := s.sessions.RecordCode(ctx, identity, code)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "no issuance session")
	}
	if !recorded {
		s.logger.InfoContext(ctx, "authorization_callback_repeated", "identity", identity.String(), "session_id", session.ID.String())
		return nil
	}

	token, err := s.issuer.ExchangeAuthorizationCode(ctx, client.AuthCodeExchange{
		TokenEndpoint: session.AuthServerMetadata.TokenEndpoint,
		Code:          code,
		RedirectURI:   s.redirectURI(),
		CodeVerifier:  session.CodeVerifier,
		ClientID:      session.LegalPerson.ClientID,
		ClientSecret:  session.LegalPerson.ClientSecret,
	})
	if err != nil {
		s.metrics.IncTokenExchange(string(models.GrantAuthorizationCode), "rejected")
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "token_exchange_failed",
			"identity", identity.String(),
			"grant_type", string(models.GrantAuthorizationCode),
			"error", err,
		)
		return err
	}
	s.metrics.IncTokenExchange(string(models.GrantAuthorizationCode), "ok")

	session, err = s.storeToken(ctx, session, token)
	if err != nil {
		return err
	}
	err = s.tasks.run(ctx, identity, func(ctx context.Context) error {
		return s.fanOut(ctx, session)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "credential_fanout_failed", "identity", identity.String(), "error", err)
	}
	return nil
}

// storeToken writes token into the session it was obtained for, unless a
// newer flow replaced that session in the meantime.
func (s *Service) storeToken(ctx context.Context, obtainedFor models.Session, token *models.TokenResponse) (models.Session, error) {
	session, err := s.sessions.Update(ctx, obtainedFor.UserIdentity, func(session *models.Session) error {
		if session.ID != obtainedFor.ID {
			return fmt.Errorf("issuance session %s: %w", obtainedFor.ID, sentinel.ErrConflict)
		}
		session.TokenResponse = token
		return nil
	})
	if err != nil {
		return models.Session{}, dErrors.Wrap(err, dErrors.CodeNotFound, "issuance session replaced during token exchange")
	}
	return session, nil
}
