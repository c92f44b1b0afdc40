package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"vcwallet/internal/issuance/models"
	dErrors "vcwallet/pkg/domain-errors"
)

// ScopeOpenID is the only scope requested from issuers.
const ScopeOpenID = "openid"

// ClientMetadata tells the issuer how to reach this wallet.
type ClientMetadata struct {
	JWKSURI                string                         `json:"jwks_uri"`
	VPFormatsSupported     map[string]map[string][]string `json:"vp_formats_supported"`
	ResponseTypesSupported []string                       `json:"response_types_supported"`
	AuthorizationEndpoint  string                         `json:"authorization_endpoint"`
}

// WalletClientMetadata describes a wallet served at walletURL whose front end
// receives redirects at walletClientURL.
func WalletClientMetadata(walletURL, walletClientURL string) ClientMetadata {
	return ClientMetadata{
		JWKSURI:                joinPath(walletURL, "/jwks"),
		VPFormatsSupported:     map[string]map[string][]string{"jwt_vp": {"alg": {"ES256"}}},
		ResponseTypesSupported: []string{"vp_token", "id_token"},
		AuthorizationEndpoint:  walletClientURL,
	}
}

// AuthorizationRequest holds the parameters of an authorization-code redirect.
type AuthorizationRequest struct {
	AuthorizationEndpoint string
	ClientID              string
	RedirectURI           string
	AuthorizationDetails  []models.AuthorizationDetail
	IssuerState           string
	ClientMetadata        ClientMetadata
}

// NewCodeVerifier returns a fresh PKCE code verifier.
func NewCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// CodeChallenge derives the S256 challenge of verifier.
func CodeChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// AuthorizationURL builds the authorization endpoint redirect. The challenge
// method is always S256.
func AuthorizationURL(req AuthorizationRequest, verifier string) (string, error) {
	details, err := json.Marshal(req.AuthorizationDetails)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode authorization_details")
	}
	metadata, err := json.Marshal(req.ClientMetadata)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode client_metadata")
	}

	cfg := oauth2.Config{
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURI,
		Scopes:      []string{ScopeOpenID},
		Endpoint:    oauth2.Endpoint{AuthURL: req.AuthorizationEndpoint},
	}
	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("authorization_details", string(details)),
		oauth2.SetAuthURLParam("client_metadata", string(metadata)),
	}
	if req.IssuerState != "" {
		opts = append(opts, oauth2.SetAuthURLParam("issuer_state", req.IssuerState))
	}
	return cfg.AuthCodeURL("", opts...), nil
}

// AuthCodeExchange holds the parameters of an authorization code redemption.
type AuthCodeExchange struct {
	TokenEndpoint string
	Code          string
	RedirectURI   string
	CodeVerifier  string
	ClientID      string
	ClientSecret  string
}

// ExchangeAuthorizationCode redeems an authorization code. Client
// credentials travel in the form body; the secret only when set.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, ex AuthCodeExchange) (_ *models.TokenResponse, err error) {
	ctx, span := c.tracer.Start(ctx, "issuer."+endpointToken,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", ex.TokenEndpoint)))
	start := time.Now()
	defer func() {
		c.metrics.ObserveIssuerRequest(endpointToken, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cfg := oauth2.Config{
		ClientID:     ex.ClientID,
		ClientSecret: ex.ClientSecret,
		RedirectURL:  ex.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  ex.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	token, err := cfg.Exchange(ctx, ex.Code, oauth2.VerifierOption(ex.CodeVerifier))
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := http.StatusBadGateway
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return nil, dErrors.Wrap(&UpstreamError{URL: ex.TokenEndpoint, StatusCode: status, Body: re.Body},
				dErrors.CodeUpstream, "token rejected")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "token request failed")
	}
	return tokenResponse(token), nil
}

func tokenResponse(token *oauth2.Token) *models.TokenResponse {
	tr := &models.TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	}
	if nonce, ok := token.Extra("c_nonce").(string); ok {
		tr.CNonce = nonce
	}
	tr.ExpiresIn = extraInt(token, "expires_in")
	tr.CNonceExpiresIn = extraInt(token, "c_nonce_expires_in")
	return tr
}

func extraInt(token *oauth2.Token, key string) int64 {
	switch v := token.Extra(key).(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	default:
		return 0
	}
}
