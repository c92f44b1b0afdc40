// Package client talks to OpenID4VCI credential issuers: discovery, token
// exchange, credential and deferred credential endpoints.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vcwallet/internal/issuance/models"
	"vcwallet/internal/platform/metrics"
	dErrors "vcwallet/pkg/domain-errors"
)

const maxResponseBytes = 1 << 20

// Endpoint labels for metrics and spans.
const (
	endpointOffer         = "credential_offer"
	endpointIssuerMeta    = "issuer_metadata"
	endpointAuthMeta      = "auth_server_metadata"
	endpointToken         = "token"
	endpointCredential    = "credential"
	endpointDeferred      = "deferred_credential"
	contentTypeJSON       = "application/json"
	contentTypeForm       = "application/x-www-form-urlencoded"
	preAuthorizedCodeForm = "pre-authorized_code"
	userPinForm           = "user_pin"
)

// Client is an HTTP client for issuer endpoints.
type Client struct {
	http    *http.Client
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures the Client.
type Option func(*Client)

// WithMetrics records request latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New returns a client issuing requests with httpClient.
func New(httpClient *http.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c := &Client{
		http:   httpClient,
		tracer: otel.Tracer("vcwallet/issuance/client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveOffer reads a credential offer from an offer URL carrying either an
// inline credential_offer or a credential_offer_uri reference.
func (c *Client) ResolveOffer(ctx context.Context, offerURL string) (*models.CredentialOffer, error) {
	u, err := url.Parse(offerURL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid credential offer url")
	}
	query := u.Query()

	var offer models.CredentialOffer
	if inline := query.Get("credential_offer"); inline != "" {
		if err := json.Unmarshal([]byte(inline), &offer); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid credential offer payload")
		}
	} else if ref := query.Get("credential_offer_uri"); ref != "" {
		if err := c.get(ctx, endpointOffer, ref, &offer); err != nil {
			return nil, err
		}
	} else {
		return nil, dErrors.New(dErrors.CodeValidation, "both credential_offer and credential_offer_uri are empty")
	}

	if offer.CredentialIssuer == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "credential offer has no credential_issuer")
	}
	return &offer, nil
}

// IssuerMetadata fetches the credential issuer discovery document.
func (c *Client) IssuerMetadata(ctx context.Context, issuerURL string) (*models.IssuerMetadata, error) {
	var md models.IssuerMetadata
	if err := c.get(ctx, endpointIssuerMeta, joinPath(issuerURL, models.CredentialIssuerMetadataPath), &md); err != nil {
		return nil, err
	}
	if md.CredentialEndpoint == "" {
		return nil, dErrors.New(dErrors.CodeUpstream, "issuer metadata has no credential_endpoint")
	}
	if md.CredentialIssuer == "" {
		md.CredentialIssuer = strings.TrimSuffix(issuerURL, "/")
	}
	return &md, nil
}

// AuthServerMetadata fetches the authorization server discovery document.
func (c *Client) AuthServerMetadata(ctx context.Context, authServerURL string) (*models.AuthServerMetadata, error) {
	var md models.AuthServerMetadata
	if err := c.get(ctx, endpointAuthMeta, joinPath(authServerURL, models.AuthServerMetadataPath), &md); err != nil {
		return nil, err
	}
	if md.TokenEndpoint == "" {
		return nil, dErrors.New(dErrors.CodeUpstream, "authorization server metadata has no token_endpoint")
	}
	return &md, nil
}

// ExchangePreAuthorizedCode redeems a pre-authorized code, with the user
// PIN when one was collected.
func (c *Client) ExchangePreAuthorizedCode(ctx context.Context, tokenEndpoint, code, userPin string) (*models.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", string(models.GrantPreAuthorizedCode))
	form.Set(preAuthorizedCodeForm, code)
	if userPin != "" {
		form.Set(userPinForm, userPin)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "build token request")
	}
	req.Header.Set("Content-Type", contentTypeForm)
	req.Header.Set("Accept", contentTypeJSON)

	var token models.TokenResponse
	if err := c.do(ctx, endpointToken, req, &token); err != nil {
		return nil, err
	}
	if token.AccessToken == "" {
		return nil, dErrors.New(dErrors.CodeUpstream, "token response has no access_token")
	}
	return &token, nil
}

// RequestCredential posts one credential request authorized by accessToken.
func (c *Client) RequestCredential(ctx context.Context, endpoint, accessToken string, body models.CredentialRequest) (*models.CredentialResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode credential request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "build credential request")
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	var resp models.CredentialResponse
	if err := c.do(ctx, endpointCredential, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RequestDeferredCredential posts an empty body with the acceptance token as
// bearer credential.
func (c *Client) RequestDeferredCredential(ctx context.Context, endpoint, acceptanceToken string) (*models.CredentialResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, http.NoBody)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "build deferred credential request")
	}
	req.Header.Set("Authorization", "Bearer "+acceptanceToken)

	var resp models.CredentialResponse
	if err := c.do(ctx, endpointDeferred, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, endpoint, target string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "build "+endpoint+" request")
	}
	req.Header.Set("Accept", contentTypeJSON)
	return c.do(ctx, endpoint, req, result)
}

// do executes req, turning transport failures and non-2xx responses into
// CodeUpstream errors that keep the issuer's raw body.
func (c *Client) do(ctx context.Context, endpoint string, req *http.Request, result any) (err error) {
	ctx, span := c.tracer.Start(ctx, "issuer."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
		))
	start := time.Now()
	defer func() {
		c.metrics.ObserveIssuerRequest(endpoint, start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, fmt.Sprintf("%s request failed", endpoint))
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, fmt.Sprintf("read %s response", endpoint))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return dErrors.Wrap(&UpstreamError{URL: req.URL.String(), StatusCode: resp.StatusCode, Body: body},
			dErrors.CodeUpstream, fmt.Sprintf("%s rejected", endpoint))
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, fmt.Sprintf("malformed %s response", endpoint))
	}
	return nil
}

func joinPath(base, path string) string {
	return strings.TrimSuffix(base, "/") + path
}
