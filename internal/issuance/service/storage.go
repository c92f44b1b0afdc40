package service

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	credmodels "vcwallet/internal/credential/models"
	"vcwallet/internal/issuance/models"
	"vcwallet/internal/notification"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
)

// Display fallbacks for credentials the issuer metadata does not describe.
const (
	fallbackLogoPath        = "/alt-vc-logo.png"
	fallbackBackgroundColor = "#D3D3D3"
)

// displayClaims is the part of a credential JWT read for display. The
// signature is not verified; nothing read here is trusted.
type displayClaims struct {
	VC struct {
		Type []string `json:"type"`
	} `json:"vc"`
	jwt.RegisteredClaims
}

// store persists an issued credential for the snapshot's holder and
// notifies the holder's devices. Failures are logged and counted here.
func (s *Service) store(ctx context.Context, snapshot models.Snapshot, i *issued) error {
	err := s.persist(ctx, snapshot, i)
	if err != nil {
		s.metrics.IncCredentialStored("failed")
		s.logger.ErrorContext(ctx, "credential_store_failed",
			"identity", snapshot.UserIdentity.String(),
			"issuer", snapshot.LegalPerson.URL,
			"error", err,
		)
		return err
	}
	s.metrics.IncCredentialStored("ok")
	return nil
}

func (s *Service) persist(ctx context.Context, snapshot models.Snapshot, i *issued) error {
	raw, ok := i.response.CredentialString()
	if !ok {
		return dErrors.New(dErrors.CodeParseFailure, "credential is not a JWT")
	}
	var claims displayClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return dErrors.Wrap(err, dErrors.CodeParseFailure, "decode credential payload")
	}

	holder, err := s.users.FindByIdentity(ctx, snapshot.UserIdentity)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "find holder")
	}

	format := i.format()
	logoURL, background := s.display(snapshot.IssuerMetadata, format, claims.VC.Type)
	issuedAt := s.now()
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	record := &credmodels.Record{
		CredentialIdentifier: domain.NewCredentialID(),
		HolderDID:            holder.DID,
		IssuerDID:            claims.Issuer,
		IssuerURL:            snapshot.LegalPerson.URL,
		IssuerFriendlyName:   snapshot.LegalPerson.FriendlyName,
		Credential:           raw,
		Format:               format,
		LogoURL:              logoURL,
		BackgroundColor:      background,
		IssuanceDate:         issuedAt,
	}
	if err := s.credentials.Create(ctx, record); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "store credential")
	}
	s.logger.InfoContext(ctx, "credential_stored",
		"identity", snapshot.UserIdentity.String(),
		"credential_id", record.CredentialIdentifier.String(),
		"issuer", record.IssuerURL,
		"format", format,
	)

	for _, token := range holder.DeviceTokens {
		s.tasks.detach(ctx, snapshot.UserIdentity, func(ctx context.Context) {
			err := s.notifier.Notify(ctx, notification.Notification{
				DeviceToken: token,
				Title:       notification.NewCredentialTitle,
				Body:        notification.NewCredentialBody,
				CreatedAt:   s.now(),
			})
			if err != nil {
				s.logger.ErrorContext(ctx, "notification_failed", "identity", snapshot.UserIdentity.String(), "error", err)
			}
		})
	}
	return nil
}

// display returns the logo and background of the first supported credential
// matching format and types.
func (s *Service) display(md models.IssuerMetadata, format string, types []string) (logoURL, background string) {
	logoURL, background = s.cfg.WalletURL+fallbackLogoPath, fallbackBackgroundColor
	for _, c := range md.CredentialsSupported {
		if !c.Matches(format, types) {
			continue
		}
		if len(c.Display) == 0 {
			return logoURL, background
		}
		d := c.Display[0]
		if d.Logo != nil && d.Logo.URL != "" {
			logoURL = d.Logo.URL
		}
		if d.BackgroundColor != "" {
			background = d.BackgroundColor
		}
		return logoURL, background
	}
	return logoURL, background
}
