package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore,CredentialStore,Prover,Notifier

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"

	credmodels "vcwallet/internal/credential/models"
	credstore "vcwallet/internal/credential/store"
	"vcwallet/internal/issuance/client"
	"vcwallet/internal/issuance/models"
	"vcwallet/internal/issuance/service/mocks"
	sessionstore "vcwallet/internal/issuance/store"
	lpmodels "vcwallet/internal/legalperson/models"
	lpstore "vcwallet/internal/legalperson/store"
	"vcwallet/internal/notification"
	usermodels "vcwallet/internal/user/models"
	userstore "vcwallet/internal/user/store"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/sentinel"
)

const (
	walletURL       = "https://wallet.example"
	walletClientURL = "https://wallet-client.example/cb"
	holder          = domain.Identity("holder-1")
	holderDID       = "did:key:z6MkholderKey"
	issuerDID       = "did:ebsi:issuer"
	accessToken     = "at-1"
	cNonce          = "nonce-1"
	proofJWT        = "proof.jwt.value"
)

// Credential request outcomes, keyed by the last requested type.
const (
	outcomeIssue    = "issue"
	outcomeFail     = "fail"
	outcomeDefer    = "defer"
	outcomeUnlisted = "unlisted"
	outcomeOpaque   = "opaque"
)

// fakeIssuer is an OpenID4VCI issuer and authorization server in one.
type fakeIssuer struct {
	t      *testing.T
	server *httptest.Server

	mu                 sync.Mutex
	supported          []models.SupportedCredential
	outcomes           map[string]string
	tokenStatus        int
	tokenBody          string
	tokenForms         []url.Values
	tokenGate          chan struct{}
	credentialRequests []models.CredentialRequest
	deferredFailures   int
	deferredCalls      int
}

func newFakeIssuer(t *testing.T) *fakeIssuer {
	f := &fakeIssuer{t: t, outcomes: make(map[string]string)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+models.CredentialIssuerMetadataPath, f.issuerMetadata)
	mux.HandleFunc("GET "+models.AuthServerMetadataPath, f.authServerMetadata)
	mux.HandleFunc("POST /token", f.token)
	mux.HandleFunc("POST /credential", f.credential)
	mux.HandleFunc("POST /deferred", f.deferred)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeIssuer) URL() string { return f.server.URL }

// support lists a jwt_vc_json credential type with its request outcome.
func (f *fakeIssuer) support(credType, outcome string, display ...models.Display) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supported = append(f.supported, models.SupportedCredential{
		ID:      credType + "_JWT",
		Format:  "jwt_vc_json",
		Types:   []string{"VerifiableCredential", credType},
		Display: display,
	})
	f.outcomes[credType] = outcome
}

func (f *fakeIssuer) rejectToken(status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus, f.tokenBody = status, body
}

// holdToken makes token requests wait until the returned func is called.
func (f *fakeIssuer) holdToken() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.tokenGate = gate
	return func() { close(gate) }
}

func (f *fakeIssuer) failDeferred(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deferredFailures = n
}

func (f *fakeIssuer) tokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokenForms)
}

func (f *fakeIssuer) lastTokenForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(f.t, f.tokenForms)
	return f.tokenForms[len(f.tokenForms)-1]
}

func (f *fakeIssuer) requests() []models.CredentialRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.CredentialRequest(nil), f.credentialRequests...)
}

func (f *fakeIssuer) deferredPolls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deferredCalls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeIssuer) issuerMetadata(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, models.IssuerMetadata{
		CredentialIssuer:           f.server.URL,
		CredentialEndpoint:         f.server.URL + "/credential",
		DeferredCredentialEndpoint: f.server.URL + "/deferred",
		CredentialsSupported:       f.supported,
		Display:                    []models.Display{{Name: "Test Issuer"}},
	})
}

func (f *fakeIssuer) authServerMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.AuthServerMetadata{
		Issuer:                f.server.URL,
		AuthorizationEndpoint: f.server.URL + "/authorize",
		TokenEndpoint:         f.server.URL + "/token",
	})
}

func (f *fakeIssuer) token(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())
	f.mu.Lock()
	f.tokenForms = append(f.tokenForms, r.PostForm)
	status, body, gate := f.tokenStatus, f.tokenBody, f.tokenGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   300,
		"c_nonce":      cNonce,
	})
}

func (f *fakeIssuer) credential(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+accessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_token"})
		return
	}
	var req models.CredentialRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))

	f.mu.Lock()
	f.credentialRequests = append(f.credentialRequests, req)
	credType := req.Types[len(req.Types)-1]
	outcome := f.outcomes[credType]
	f.mu.Unlock()

	switch outcome {
	case outcomeFail:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error"})
	case outcomeDefer:
		writeJSON(w, http.StatusAccepted, map[string]string{"acceptance_token": "accept-" + credType})
	case outcomeOpaque:
		writeJSON(w, http.StatusOK, map[string]any{"format": req.Format, "credential": "not-a-jwt"})
	case outcomeUnlisted:
		writeJSON(w, http.StatusOK, map[string]any{
			"format":     req.Format,
			"credential": f.credentialJWT([]string{"VerifiableCredential", "Unlisted"}),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"format":     req.Format,
			"credential": f.credentialJWT(req.Types),
		})
	}
}

func (f *fakeIssuer) deferred(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.deferredCalls++
	failing := f.deferredFailures > 0
	if failing {
		f.deferredFailures--
	}
	f.mu.Unlock()

	if failing || r.Header.Get("Authorization") == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "issuance_pending"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"format":     "jwt_vc_json",
		"credential": f.credentialJWT([]string{"VerifiableCredential", "Deferred"}),
	})
}

func (f *fakeIssuer) credentialJWT(types []string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": issuerDID,
		"sub": holderDID,
		"iat": time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Unix(),
		"vc":  map[string]any{"type": types},
	})
	signed, err := token.SignedString([]byte("issuer-secret"))
	require.NoError(f.t, err)
	return signed
}

// instantTimer fires immediately and records the delays it was asked for.
type instantTimer struct {
	mu    *sync.Mutex
	waits *[]time.Duration
	c     chan time.Time
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	*t.waits = append(*t.waits, d)
	t.mu.Unlock()
	t.c <- time.Now()
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

// stuckTimer never fires.
type stuckTimer struct{ c chan time.Time }

func (t *stuckTimer) Start(time.Duration) {}
func (t *stuckTimer) Stop()               {}
func (t *stuckTimer) C() <-chan time.Time { return t.c }

type ServiceSuite struct {
	suite.Suite
	ctrl         *gomock.Controller
	prover       *mocks.MockProver
	notifier     *mocks.MockNotifier
	issuer       *fakeIssuer
	sessions     *sessionstore.InMemorySessionStore
	legalPersons *lpstore.InMemoryLegalPersonStore
	users        *userstore.InMemoryUserStore
	credentials  *credstore.InMemoryCredentialStore
	service      *Service

	waitsMu sync.Mutex
	waits   []time.Duration

	expectedNotifications int32
	notified              atomic.Int32
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.prover = mocks.NewMockProver(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.issuer = newFakeIssuer(s.T())
	s.sessions = sessionstore.New()
	s.legalPersons = lpstore.New()
	s.users = userstore.New()
	s.credentials = credstore.New()
	s.waits = nil
	s.expectedNotifications = 0
	s.notified.Store(0)

	s.Require().NoError(s.users.Save(context.Background(), &usermodels.User{
		Identity:     holder,
		DID:          holderDID,
		DeviceTokens: []string{"device-a", "device-b"},
	}))

	s.service = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	opts = append([]Option{
		WithNotifier(s.notifier),
		WithPollTimer(func() backoff.Timer {
			return &instantTimer{mu: &s.waitsMu, waits: &s.waits, c: make(chan time.Time, 1)}
		}),
	}, opts...)
	return New(
		Config{WalletURL: walletURL, WalletClientURL: walletClientURL},
		s.sessions,
		client.New(s.issuer.server.Client()),
		s.legalPersons,
		s.users,
		s.credentials,
		s.prover,
		opts...,
	)
}

// logSink collects JSON log records written concurrently.
type logSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (l *logSink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

// records returns the decoded records whose msg is msg.
func (l *logSink) records(t *testing.T, msg string) []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(l.buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == msg {
			out = append(out, rec)
		}
	}
	return out
}

func (s *ServiceSuite) TearDownTest() {
	s.Eventually(func() bool { return s.notified.Load() == s.expectedNotifications }, 5*time.Second, 5*time.Millisecond)
	s.service.Close()
}

// registerIssuer adds the fake issuer to the registry.
func (s *ServiceSuite) registerIssuer() *lpmodels.LegalPerson {
	lp := &lpmodels.LegalPerson{
		DID:          issuerDID,
		URL:          s.issuer.URL(),
		FriendlyName: "Registered Issuer",
		ClientID:     "wallet-client-id",
		ClientSecret: "wallet-client-secret",
	}
	s.Require().NoError(s.legalPersons.Create(context.Background(), lp))
	return lp
}

func (s *ServiceSuite) offerURL(offer map[string]any) string {
	raw, err := json.Marshal(offer)
	s.Require().NoError(err)
	return "openid-credential-offer://?credential_offer=" + url.QueryEscape(string(raw))
}

func (s *ServiceSuite) expectProof() {
	s.prover.EXPECT().
		GenerateProof(gomock.Any(), holder, s.issuer.URL(), cNonce, gomock.Any()).
		Return(proofJWT, nil)
}

// expectNotifications expects one notification per device per credential.
func (s *ServiceSuite) expectNotifications(credentials int) {
	s.expectedNotifications = int32(2 * credentials)
	s.notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n notification.Notification) error {
			s.Contains([]string{"device-a", "device-b"}, n.DeviceToken)
			s.Equal(notification.NewCredentialTitle, n.Title)
			s.notified.Add(1)
			return nil
		}).
		Times(2 * credentials)
}

func (s *ServiceSuite) stored() []credmodels.Record {
	records, err := s.credentials.ListByHolder(context.Background(), holderDID)
	s.Require().NoError(err)
	return records
}

func (s *ServiceSuite) awaitStored(n int) []credmodels.Record {
	s.Require().Eventually(func() bool { return len(s.stored()) == n }, 5*time.Second, 10*time.Millisecond)
	return s.stored()
}

func (s *ServiceSuite) startAuthorizationCode() *url.URL {
	s.registerIssuer()
	result, err := s.service.StartIssuance(context.Background(), holder, models.StartRequest{LegalPersonDID: issuerDID})
	s.Require().NoError(err)
	s.Require().NotEmpty(result.RedirectTo)
	redirect, err := url.Parse(result.RedirectTo)
	s.Require().NoError(err)
	return redirect
}

func (s *ServiceSuite) TestStartIssuanceForRegisteredIssuer() {
	s.issuer.support("PID", outcomeIssue)
	s.issuer.support("EHIC", outcomeIssue)

	redirect := s.startAuthorizationCode()

	s.Equal(s.issuer.URL()+"/authorize", redirect.Scheme+"://"+redirect.Host+redirect.Path)
	q := redirect.Query()
	s.Equal("code", q.Get("response_type"))
	s.Equal("openid", q.Get("scope"))
	s.Equal("wallet-client-id", q.Get("client_id"))
	s.Equal(walletClientURL, q.Get("redirect_uri"))
	s.Equal("S256", q.Get("code_challenge_method"))
	s.False(q.Has("issuer_state"))

	var details []models.AuthorizationDetail
	s.Require().NoError(json.Unmarshal([]byte(q.Get("authorization_details")), &details))
	s.Require().Len(details, 2)
	s.Equal(models.AuthorizationDetailType, details[0].Type)
	s.Equal([]string{"VerifiableCredential", "PID"}, details[0].Types)
	s.Equal([]string{s.issuer.URL()}, details[0].Locations)

	s.Run("code challenge verifies against the stored verifier", func() {
		session, err := s.sessions.Get(context.Background(), holder)
		s.Require().NoError(err)
		s.NotEmpty(session.CodeVerifier)
		s.Equal(client.CodeChallenge(session.CodeVerifier), q.Get("code_challenge"))
		s.Equal(models.GrantAuthorizationCode, session.GrantType)
	})
}

func (s *ServiceSuite) TestStartIssuanceFromOfferWithoutPreAuthorizedGrant() {
	s.issuer.support("PID", outcomeIssue)
	s.issuer.support("EHIC", outcomeIssue)

	result, err := s.service.StartIssuance(context.Background(), holder, models.StartRequest{
		OfferURL: s.offerURL(map[string]any{
			"credential_issuer": s.issuer.URL(),
			"credentials":       []any{"PID_JWT"},
			"grants": map[string]any{
				"authorization_code": map[string]any{"issuer_state": "state-from-offer"},
			},
		}),
	})
	s.Require().NoError(err)
	s.False(result.PreAuth)
	s.Contains(result.RedirectTo, "response_type=code")
	s.Contains(result.RedirectTo, "scope=openid")

	redirect, err := url.Parse(result.RedirectTo)
	s.Require().NoError(err)
	s.Equal("state-from-offer", redirect.Query().Get("issuer_state"))
	s.Equal(holder.String(), redirect.Query().Get("client_id"), "unregistered issuers see the holder as client")

	session, err := s.sessions.Get(context.Background(), holder)
	s.Require().NoError(err)
	s.Require().Len(session.AuthorizationDetails, 1, "only the offered credential is requested")
	s.Equal([]string{"VerifiableCredential", "PID"}, session.AuthorizationDetails[0].Types)
	s.Equal("Test Issuer", session.LegalPerson.FriendlyName)
	s.False(session.LegalPerson.IsRegistered())

	state, err := s.service.IssuerState(context.Background(), holder)
	s.Require().NoError(err)
	s.Equal("state-from-offer", state)
}

func (s *ServiceSuite) TestStartIssuancePreAuthorizedAsksForPin() {
	s.issuer.support("PID", outcomeIssue)

	result, err := s.service.StartIssuance(context.Background(), holder, models.StartRequest{
		OfferURL: s.offerURL(map[string]any{
			"credential_issuer": s.issuer.URL(),
			"credentials":       []any{map[string]any{"format": "jwt_vc_json", "types": []string{"VerifiableCredential", "PID"}}},
			"grants": map[string]any{
				"urn:ietf:params:oauth:grant-type:pre-authorized_code": map[string]any{
					"pre-authorized_code": "pre-code-1",
					"user_pin_required":   true,
				},
			},
		}),
	})
	s.Require().NoError(err)
	s.Equal(&models.StartResult{PreAuth: true, AskForPin: true}, result)
	s.Zero(s.issuer.tokenCalls())

	session, err := s.sessions.Get(context.Background(), holder)
	s.Require().NoError(err)
	s.Equal(models.GrantPreAuthorizedCode, session.GrantType)
	s.Equal("pre-code-1", session.Code)
	s.Empty(session.CodeVerifier)
}

func (s *ServiceSuite) TestStartIssuanceRejectsBadRequests() {
	ctx := context.Background()

	_, err := s.service.StartIssuance(ctx, holder, models.StartRequest{})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.StartIssuance(ctx, holder, models.StartRequest{LegalPersonDID: "did:x", OfferURL: "openid-credential-offer://"})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.StartIssuance(ctx, holder, models.StartRequest{LegalPersonDID: "did:unknown"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.service.IssuerState(ctx, holder)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestStartIssuanceSurfacesDiscoveryFailure() {
	s.Require().NoError(s.legalPersons.Create(context.Background(), &lpmodels.LegalPerson{
		DID: "did:ebsi:gone",
		URL: s.issuer.URL() + "/missing",
	}))

	_, err := s.service.StartIssuance(context.Background(), holder, models.StartRequest{LegalPersonDID: "did:ebsi:gone"})
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Error(s.sessionErr())
}

func (s *ServiceSuite) sessionErr() error {
	_, err := s.sessions.Get(context.Background(), holder)
	return err
}

func (s *ServiceSuite) TestHandleAuthorizationCallback() {
	s.issuer.support("PID", outcomeIssue, models.Display{
		Name:            "Person ID",
		Logo:            &models.Logo{URL: "https://issuer.example/pid.png"},
		BackgroundColor: "#112233",
	})
	s.startAuthorizationCode()
	s.expectProof()
	s.expectNotifications(1)

	s.Require().NoError(s.service.HandleAuthorizationCallback(context.Background(), holder, walletClientURL+"?code=auth-code-1"))

	form := s.issuer.lastTokenForm()
	s.Equal("authorization_code", form.Get("grant_type"))
	s.Equal("auth-code-1", form.Get("code"))
	s.Equal(walletClientURL, form.Get("redirect_uri"))
	s.Equal("wallet-client-id", form.Get("client_id"))
	s.Equal("wallet-client-secret", form.Get("client_secret"))
	s.NotEmpty(form.Get("code_verifier"))

	requests := s.issuer.requests()
	s.Require().Len(requests, 1)
	s.Equal(models.JWTProof{ProofType: "jwt", JWT: proofJWT}, requests[0].Proof)

	records := s.stored()
	s.Require().Len(records, 1, "immediate credentials are stored before the callback returns")
	s.Equal(holderDID, records[0].HolderDID)
	s.Equal(issuerDID, records[0].IssuerDID)
	s.Equal(s.issuer.URL(), records[0].IssuerURL)
	s.Equal("Registered Issuer", records[0].IssuerFriendlyName)
	s.Equal("jwt_vc_json", records[0].Format)
	s.Equal("https://issuer.example/pid.png", records[0].LogoURL)
	s.Equal("#112233", records[0].BackgroundColor)
	s.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), records[0].IssuanceDate.UTC())

	s.ErrorIs(s.sessionErr(), sentinel.ErrNotFound, "session is released after the fan-out")
}

func (s *ServiceSuite) TestHandleAuthorizationCallbackIsIdempotent() {
	s.issuer.support("PID", outcomeIssue)
	s.startAuthorizationCode()
	s.expectProof()
	s.expectNotifications(1)

	release := s.issuer.holdToken()
	ctx := context.Background()
	first := make(chan error, 1)
	go func() {
		first <- s.service.HandleAuthorizationCallback(ctx, holder, walletClientURL+"?code=auth-code-1")
	}()
	s.Require().Eventually(func() bool { return s.issuer.tokenCalls() == 1 }, 5*time.Second, 5*time.Millisecond)

	s.NoError(s.service.HandleAuthorizationCallback(ctx, holder, walletClientURL+"?code=auth-code-1"))
	release()
	s.Require().NoError(<-first)

	s.Equal(1, s.issuer.tokenCalls())
	s.Len(s.stored(), 1)
}

func (s *ServiceSuite) TestHandleAuthorizationCallbackErrors() {
	ctx := context.Background()

	err := s.service.HandleAuthorizationCallback(ctx, holder, walletClientURL+"?state=x")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	err = s.service.HandleAuthorizationCallback(ctx, holder, walletClientURL+"?code=c")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Run("rejected token exchange is surfaced", func() {
		s.issuer.support("PID", outcomeIssue)
		s.startAuthorizationCode()
		s.issuer.rejectToken(http.StatusBadRequest, `{"error":"invalid_grant"}`)

		err := s.service.HandleAuthorizationCallback(ctx, holder, walletClientURL+"?code=bad")
		s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
		upstream, ok := client.AsUpstream(err)
		s.Require().True(ok)
		s.Equal(client.ErrorInvalidGrant, upstream.OAuthErrorCode())
		s.Empty(s.issuer.requests())
	})
}

func (s *ServiceSuite) TestFanOutKeepsSuccessfulSiblings() {
	s.issuer.support("A", outcomeIssue)
	s.issuer.support("B", outcomeFail)
	s.issuer.support("C", outcomeIssue)
	s.issuer.support("D", outcomeFail)
	s.startAuthorizationCode()
	s.expectProof()
	s.expectNotifications(2)

	s.Require().NoError(s.service.HandleAuthorizationCallback(context.Background(), holder, walletClientURL+"?code=c1"))

	s.Len(s.issuer.requests(), 4, "one request per authorization detail")
	records := s.stored()
	s.Require().Len(records, 2)
	for _, r := range records {
		s.Equal(walletURL+"/alt-vc-logo.png", r.LogoURL)
	}
}

func (s *ServiceSuite) TestFanOutCountsStoreFailures() {
	sink := &logSink{}
	s.service.Close()
	s.service = s.newService(WithLogger(slog.New(slog.NewJSONHandler(sink, nil))))

	s.issuer.support("A", outcomeIssue)
	s.issuer.support("B", outcomeOpaque)
	s.startAuthorizationCode()
	s.expectProof()
	s.expectNotifications(1)

	s.Require().NoError(s.service.HandleAuthorizationCallback(context.Background(), holder, walletClientURL+"?code=c1"))

	s.Len(s.stored(), 1)
	settled := sink.records(s.T(), "credential_fanout_settled")
	s.Require().Len(settled, 1)
	s.EqualValues(2, settled[0]["issued"])
	s.EqualValues(1, settled[0]["store_failed"])
	s.Len(sink.records(s.T(), "credential_store_failed"), 1)
}

func (s *ServiceSuite) TestProofFailureSendsNoRequests() {
	s.issuer.support("PID", outcomeIssue)
	s.startAuthorizationCode()
	s.prover.EXPECT().
		GenerateProof(gomock.Any(), holder, gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", errors.New("device offline"))

	s.NoError(s.service.HandleAuthorizationCallback(context.Background(), holder, walletClientURL+"?code=c1"),
		"fan-out failures are not surfaced once the code is accepted")
	s.Empty(s.issuer.requests())
	s.Empty(s.stored())
}

func (s *ServiceSuite) TestDisplayFallsBackToPlaceholder() {
	s.issuer.support("PID", outcomeUnlisted, models.Display{
		Logo:            &models.Logo{URL: "https://issuer.example/pid.png"},
		BackgroundColor: "#112233",
	})
	s.startAuthorizationCode()
	s.expectProof()
	s.expectNotifications(1)

	s.Require().NoError(s.service.HandleAuthorizationCallback(context.Background(), holder, walletClientURL+"?code=c1"))

	records := s.stored()
	s.Require().Len(records, 1)
	s.Equal(walletURL+"/alt-vc-logo.png", records[0].LogoURL)
	s.Equal("#D3D3D3", records[0].BackgroundColor)
}

func (s *ServiceSuite) TestDeferredPollingRetriesAtFixedInterval() {
	s.issuer.support("Deferred", outcomeDefer)
	s.issuer.support("PID", outcomeIssue)
	s.issuer.failDeferred(3)
	s.startAuthorizationCode()
	s.expectProof()
	s.expectNotifications(2)

	s.Require().NoError(s.service.HandleAuthorizationCallback(context.Background(), holder, walletClientURL+"?code=c1"))

	records := s.awaitStored(2)
	s.Equal(4, s.issuer.deferredPolls(), "three failures then one success")
	s.waitsMu.Lock()
	s.Equal([]time.Duration{DefaultPollInterval, DefaultPollInterval, DefaultPollInterval}, s.waits)
	s.waitsMu.Unlock()
	s.Equal(2*time.Second, DefaultPollInterval)

	s.NotEqual(records[0].Credential, records[1].Credential)
}

func (s *ServiceSuite) TestResumePreAuthorized() {
	s.issuer.support("PID", outcomeIssue)
	s.startPreAuthorized()
	s.expectProof()
	s.expectNotifications(1)

	s.Require().NoError(s.service.ResumePreAuthorized(context.Background(), holder, "1234"))

	form := s.issuer.lastTokenForm()
	s.Equal(string(models.GrantPreAuthorizedCode), form.Get("grant_type"))
	s.Equal("pre-code-1", form.Get("pre-authorized_code"))
	s.Equal("1234", form.Get("user_pin"))

	s.awaitStored(1)
}

func (s *ServiceSuite) TestResumePreAuthorizedRejectsAuthorizationCodeSession() {
	s.issuer.support("PID", outcomeIssue)
	s.startAuthorizationCode()

	err := s.service.ResumePreAuthorized(context.Background(), holder, "1234")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	session, err := s.sessions.Get(context.Background(), holder)
	s.Require().NoError(err)
	s.Empty(session.UserPin)
	s.Equal(models.GrantAuthorizationCode, session.GrantType)
	s.Zero(s.issuer.tokenCalls())
	s.Empty(s.issuer.requests())
}

func (s *ServiceSuite) TestResumePreAuthorizedClassifiesFailures() {
	ctx := context.Background()
	s.True(dErrors.HasCode(s.service.ResumePreAuthorized(ctx, holder, "1234"), dErrors.CodeNotFound))

	s.issuer.support("PID", outcomeIssue)
	s.startPreAuthorized()

	s.Run("invalid_request carries the issuer body", func() {
		s.issuer.rejectToken(http.StatusBadRequest, `{"error":"invalid_request","error_description":"wrong pin"}`)

		err := s.service.ResumePreAuthorized(ctx, holder, "0000")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidRequest))
		upstream, ok := client.AsUpstream(err)
		s.Require().True(ok)
		s.Equal("wrong pin", upstream.Fields()["error_description"])
	})

	s.Run("other rejections are opaque upstream errors", func() {
		s.issuer.rejectToken(http.StatusInternalServerError, `{"error":"server_error"}`)

		err := s.service.ResumePreAuthorized(ctx, holder, "1234")
		s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	})

	s.Equal(2, s.issuer.tokenCalls(), "token exchange is never retried")
	s.Empty(s.issuer.requests())
}

func (s *ServiceSuite) startPreAuthorized() {
	result, err := s.service.StartIssuance(context.Background(), holder, models.StartRequest{
		OfferURL: s.offerURL(map[string]any{
			"credential_issuer": s.issuer.URL(),
			"credentials":       []any{"PID_JWT"},
			"grants": map[string]any{
				"urn:ietf:params:oauth:grant-type:pre-authorized_code": map[string]any{
					"pre-authorized_code": "pre-code-1",
					"user_pin_required":   true,
				},
			},
		}),
	})
	s.Require().NoError(err)
	s.Require().True(result.PreAuth)
}

func (s *ServiceSuite) TestAvailableCredentials() {
	s.issuer.support("PID", outcomeIssue, models.Display{Name: "Person ID"})
	s.issuer.support("EHIC", outcomeIssue)
	s.registerIssuer()

	available, err := s.service.AvailableCredentials(context.Background(), issuerDID)
	s.Require().NoError(err)
	s.Equal([]models.AvailableCredential{
		{ID: "PID_JWT", DisplayName: "Person ID"},
		{ID: "EHIC_JWT", DisplayName: "EHIC_JWT"},
	}, available)

	_, err = s.service.AvailableCredentials(context.Background(), "did:unknown")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestNewSessionReplacesPrevious() {
	s.issuer.support("PID", outcomeIssue)
	s.startAuthorizationCode()
	first, err := s.sessions.Get(context.Background(), holder)
	s.Require().NoError(err)

	_, err = s.service.StartIssuance(context.Background(), holder, models.StartRequest{LegalPersonDID: issuerDID})
	s.Require().NoError(err)
	second, err := s.sessions.Get(context.Background(), holder)
	s.Require().NoError(err)
	s.NotEqual(first.ID, second.ID)
}

func TestCancelDetachedStopsDeferredPolling(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctrl := gomock.NewController(t)
	prover := mocks.NewMockProver(ctrl)
	issuer := newFakeIssuer(t)
	issuer.support("Deferred", outcomeDefer)
	issuer.failDeferred(1 << 30)

	legalPersons := lpstore.New()
	require.NoError(t, legalPersons.Create(context.Background(), &lpmodels.LegalPerson{DID: issuerDID, URL: issuer.URL()}))
	httpClient := issuer.server.Client()
	svc := New(
		Config{WalletURL: walletURL, WalletClientURL: walletClientURL},
		sessionstore.New(),
		client.New(httpClient),
		legalPersons,
		userstore.New(),
		credstore.New(),
		prover,
		WithPollTimer(func() backoff.Timer { return &stuckTimer{c: make(chan time.Time)} }),
	)
	prover.EXPECT().GenerateProof(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(proofJWT, nil)

	ctx := context.Background()
	_, err := svc.StartIssuance(ctx, holder, models.StartRequest{LegalPersonDID: issuerDID})
	require.NoError(t, err)
	require.NoError(t, svc.HandleAuthorizationCallback(ctx, holder, walletClientURL+"?code=c1"))
	require.Eventually(t, func() bool { return issuer.deferredPolls() == 1 }, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, svc.CancelDetached(ctx, holder))
	svc.Close()
	assert.Equal(t, 1, issuer.deferredPolls())

	issuer.server.Close()
	httpClient.CloseIdleConnections()
}
