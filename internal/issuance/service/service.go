// Package service drives OpenID4VCI issuance for wallet holders: issuer
// discovery, authorization, token exchange, credential request fan-out,
// deferred polling and storage of the accepted credentials.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	credmodels "vcwallet/internal/credential/models"
	"vcwallet/internal/issuance/client"
	"vcwallet/internal/issuance/models"
	"vcwallet/internal/keystore"
	lpmodels "vcwallet/internal/legalperson/models"
	"vcwallet/internal/notification"
	"vcwallet/internal/platform/metrics"
	usermodels "vcwallet/internal/user/models"
	"vcwallet/pkg/domain"
)

// DefaultPollInterval is the fixed delay between deferred credential polls.
const DefaultPollInterval = 2 * time.Second

// SessionStore holds one issuance session per identity.
type SessionStore interface {
	Put(ctx context.Context, session models.Session) (models.Session, bool)
	Get(ctx context.Context, identity domain.Identity) (models.Session, error)
	Update(ctx context.Context, identity domain.Identity, fn func(*models.Session) error) (models.Session, error)
	RecordCode(ctx context.Context, identity domain.Identity, code string) (models.Session, bool, error)
	DeleteIfCurrent(ctx context.Context, identity domain.Identity, sessionID uuid.UUID) bool
}

// IssuerClient talks to issuer endpoints.
type IssuerClient interface {
	ResolveOffer(ctx context.Context, offerURL string) (*models.CredentialOffer, error)
	IssuerMetadata(ctx context.Context, issuerURL string) (*models.IssuerMetadata, error)
	AuthServerMetadata(ctx context.Context, authServerURL string) (*models.AuthServerMetadata, error)
	ExchangePreAuthorizedCode(ctx context.Context, tokenEndpoint, code, userPin string) (*models.TokenResponse, error)
	ExchangeAuthorizationCode(ctx context.Context, ex client.AuthCodeExchange) (*models.TokenResponse, error)
	RequestCredential(ctx context.Context, endpoint, accessToken string, body models.CredentialRequest) (*models.CredentialResponse, error)
	RequestDeferredCredential(ctx context.Context, endpoint, acceptanceToken string) (*models.CredentialResponse, error)
}

// MetadataResolver serves possibly cached issuer metadata.
type MetadataResolver interface {
	IssuerMetadata(ctx context.Context, issuerURL string) (*models.IssuerMetadata, error)
}

// LegalPersonStore is the issuer registry.
type LegalPersonStore interface {
	ByDID(ctx context.Context, did string) (*lpmodels.LegalPerson, error)
	ByURL(ctx context.Context, issuerURL string) (*lpmodels.LegalPerson, error)
}

// UserStore resolves holders.
type UserStore interface {
	FindByIdentity(ctx context.Context, identity domain.Identity) (*usermodels.User, error)
}

// CredentialStore persists accepted credentials.
type CredentialStore interface {
	Create(ctx context.Context, record *credmodels.Record) error
}

// Prover produces proofs of possession for credential requests.
type Prover interface {
	GenerateProof(ctx context.Context, identity domain.Identity, audience, nonce string, params keystore.Params) (string, error)
}

// Notifier delivers push notifications.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// Config carries the wallet's own endpoints and the polling policy.
type Config struct {
	// WalletURL is the public URL of this backend.
	WalletURL string
	// WalletClientURL is the wallet front end; issuers redirect there.
	WalletClientURL string
	PollInterval    time.Duration
}

// Service is the issuance orchestrator.
type Service struct {
	cfg          Config
	sessions     SessionStore
	issuer       IssuerClient
	metadata     MetadataResolver
	legalPersons LegalPersonStore
	users        UserStore
	credentials  CredentialStore
	prover       Prover
	notifier     Notifier

	tasks    *taskRegistry
	newTimer func() backoff.Timer
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics records issuance metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMetadataResolver serves AvailableCredentials from a cache.
func WithMetadataResolver(r MetadataResolver) Option {
	return func(s *Service) {
		s.metadata = r
	}
}

// WithNotifier sets where new-credential notifications go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithPollTimer replaces the timer used between deferred polls.
func WithPollTimer(newTimer func() backoff.Timer) Option {
	return func(s *Service) {
		s.newTimer = newTimer
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs the orchestrator. Without WithNotifier, notifications are
// only logged.
func New(
	cfg Config,
	sessions SessionStore,
	issuer IssuerClient,
	legalPersons LegalPersonStore,
	users UserStore,
	credentials CredentialStore,
	prover Prover,
	opts ...Option,
) *Service {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	s := &Service{
		cfg:          cfg,
		sessions:     sessions,
		issuer:       issuer,
		metadata:     issuer,
		legalPersons: legalPersons,
		users:        users,
		credentials:  credentials,
		prover:       prover,
		newTimer:     func() backoff.Timer { return nil },
		now:          time.Now,
		logger:       slog.Default(),
		tracer:       otel.Tracer("vcwallet/issuance/service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notification.NewLogNotifier(s.logger)
	}
	s.tasks = newTaskRegistry(s.metrics)
	return s
}

// CancelDetached cancels the background work (fan-out, deferred polling,
// notifications) started for identity and returns how many tasks were
// signalled.
func (s *Service) CancelDetached(ctx context.Context, identity domain.Identity) int {
	n := s.tasks.cancel(identity)
	s.logger.InfoContext(ctx, "detached_tasks_cancelled", "identity", identity.String(), "count", n)
	return n
}

// Close cancels all background work and waits for it to finish.
func (s *Service) Close() {
	s.tasks.close()
}

// redirectURI is where issuers send the holder back after authorization.
func (s *Service) redirectURI() string {
	return s.cfg.WalletClientURL
}
