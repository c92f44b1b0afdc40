package keystore

import (
	"context"
	"errors"
	"log/slog"

	"vcwallet/internal/signing"
	usermodels "vcwallet/internal/user/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/sentinel"
)

// Channel relays signing requests to the holder's device.
type Channel interface {
	Request(ctx context.Context, identity domain.Identity, req signing.Request) (*signing.ClientMessage, error)
}

// HolderStore resolves the DID registered for a holder.
type HolderStore interface {
	FindByIdentity(ctx context.Context, identity domain.Identity) (*usermodels.User, error)
}

// Remote asks the holder's device to sign over the signing channel. Keys
// never leave the device.
type Remote struct {
	channel Channel
	users   HolderStore
	logger  *slog.Logger
}

// NewRemote returns a keystore relaying to channel.
func NewRemote(channel Channel, users HolderStore, logger *slog.Logger) *Remote {
	if logger == nil {
		logger = slog.Default()
	}
	return &Remote{channel: channel, users: users, logger: logger}
}

// GenerateKeyPair returns the DID the device registered; key generation
// itself happens on the device.
func (r *Remote) GenerateKeyPair(ctx context.Context, identity domain.Identity) (KeyPair, error) {
	did, err := r.Identifier(ctx, identity)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{DID: did}, nil
}

func (r *Remote) CreateIDToken(ctx context.Context, identity domain.Identity, nonce, audience string, params Params) (string, error) {
	resp, err := r.request(ctx, identity, signing.Request{
		Action:   signing.ActionCreateIDToken,
		Nonce:    nonce,
		Audience: audience,
		Params:   params,
	})
	if err != nil {
		return "", err
	}
	return nonEmpty(resp.IDToken, "id_token")
}

func (r *Remote) SignPresentation(ctx context.Context, identity domain.Identity, nonce, audience string, credentials []string, params Params) (string, error) {
	resp, err := r.request(ctx, identity, signing.Request{
		Action:                signing.ActionSignJWTPresentation,
		Nonce:                 nonce,
		Audience:              audience,
		VerifiableCredentials: credentials,
		Params:                params,
	})
	if err != nil {
		return "", err
	}
	return nonEmpty(resp.VPJWT, "vpjwt")
}

func (r *Remote) GenerateProof(ctx context.Context, identity domain.Identity, audience, nonce string, params Params) (string, error) {
	resp, err := r.request(ctx, identity, signing.Request{
		Action:   signing.ActionGenerateOpenID4VCIProof,
		Nonce:    nonce,
		Audience: audience,
		Params:   params,
	})
	if err != nil {
		return "", err
	}
	return nonEmpty(resp.ProofJWT, "proof_jwt")
}

func (r *Remote) Identifier(ctx context.Context, identity domain.Identity) (string, error) {
	user, err := r.users.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeStorageFailure, "find user")
	}
	if user.DID == "" {
		return "", dErrors.New(dErrors.CodeSignatureFailure, "no DID registered for user")
	}
	return user.DID, nil
}

func (r *Remote) request(ctx context.Context, identity domain.Identity, req signing.Request) (*signing.Response, error) {
	reply, err := r.channel.Request(ctx, identity, req)
	if err != nil {
		r.logger.WarnContext(ctx, "remote_signing_failed",
			"identity", identity.String(),
			"action", string(req.Action),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "remote signing failed")
	}
	return reply.Response, nil
}

func nonEmpty(value, field string) (string, error) {
	if value == "" {
		return "", dErrors.Newf(dErrors.CodeSignatureFailure, "device reply has no %s", field)
	}
	return value, nil
}
