package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the wallet backend.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	IssuancesStarted     *prometheus.CounterVec
	TokenExchanges       *prometheus.CounterVec
	CredentialRequests   *prometheus.CounterVec
	DeferredPollAttempts *prometheus.CounterVec
	CredentialsStored    *prometheus.CounterVec
	DetachedTasks        prometheus.Gauge
	IssuerRequestLatency *prometheus.HistogramVec
	SigningConnections   prometheus.Gauge
	SigningReplies       *prometheus.CounterVec
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IssuancesStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vcwallet_issuances_started_total",
			Help: "Issuance flows started, by grant type",
		}, []string{"grant_type"}),
		TokenExchanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vcwallet_token_exchanges_total",
			Help: "Token exchanges against issuer token endpoints",
		}, []string{"grant_type", "outcome"}),
		CredentialRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vcwallet_credential_requests_total",
			Help: "Credential endpoint requests by outcome (issued, deferred, rejected)",
		}, []string{"outcome"}),
		DeferredPollAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vcwallet_deferred_poll_attempts_total",
			Help: "Deferred credential polling attempts by outcome",
		}, []string{"outcome"}),
		CredentialsStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vcwallet_credentials_stored_total",
			Help: "Credential storage handoffs by outcome",
		}, []string{"outcome"}),
		DetachedTasks: f.NewGauge(prometheus.GaugeOpts{
			Name: "vcwallet_detached_tasks",
			Help: "Detached issuance tasks (fan-out, polling) currently running",
		}),
		IssuerRequestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vcwallet_issuer_request_duration_seconds",
			Help:    "Latency of outbound issuer requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		SigningConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "vcwallet_signing_connections",
			Help: "Authenticated remote signing connections",
		}),
		SigningReplies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vcwallet_signing_replies_total",
			Help: "Remote signing replies by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncIssuanceStarted(grantType string) {
	if m == nil {
		return
	}
	m.IssuancesStarted.WithLabelValues(grantType).Inc()
}

func (m *Metrics) IncTokenExchange(grantType, outcome string) {
	if m == nil {
		return
	}
	m.TokenExchanges.WithLabelValues(grantType, outcome).Inc()
}

func (m *Metrics) IncCredentialRequest(outcome string) {
	if m == nil {
		return
	}
	m.CredentialRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncDeferredPoll(outcome string) {
	if m == nil {
		return
	}
	m.DeferredPollAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCredentialStored(outcome string) {
	if m == nil {
		return
	}
	m.CredentialsStored.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddDetachedTasks(delta float64) {
	if m == nil {
		return
	}
	m.DetachedTasks.Add(delta)
}

// ObserveIssuerRequest records how long a call to an issuer endpoint took.
func (m *Metrics) ObserveIssuerRequest(endpoint string, start time.Time) {
	if m == nil {
		return
	}
	m.IssuerRequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddSigningConnections(delta float64) {
	if m == nil {
		return
	}
	m.SigningConnections.Add(delta)
}

func (m *Metrics) IncSigningReply(outcome string) {
	if m == nil {
		return
	}
	m.SigningReplies.WithLabelValues(outcome).Inc()
}
