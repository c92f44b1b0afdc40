package service

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"vcwallet/internal/issuance/client"
	"vcwallet/internal/issuance/models"
	dErrors "vcwallet/pkg/domain-errors"
)

// issued is an accepted credential response together with the detail that
// requested it.
type issued struct {
	detail   models.AuthorizationDetail
	response *models.CredentialResponse
}

// format is the response format, falling back to the requested one.
func (i issued) format() string {
	if i.response.Format != "" {
		return i.response.Format
	}
	return i.detail.Format
}

// fanOut requests every authorized credential with one shared proof. Each
// request settles on its own; the session is released once all have, and
// accepted responses are stored or handed to deferred polling.
func (s *Service) fanOut(ctx context.Context, session models.Session) error {
	ctx, span := s.tracer.Start(ctx, "issuance.fanOut")
	defer span.End()

	md := session.IssuerMetadata
	proof, err := s.prover.GenerateProof(ctx, session.UserIdentity, md.CredentialIssuer, session.TokenResponse.CNonce, nil)
	if err != nil {
		span.RecordError(err)
		return dErrors.Wrap(err, dErrors.CodeSignatureFailure, "generate proof of possession")
	}

	results := make([]*issued, len(session.AuthorizationDetails))
	var g errgroup.Group
	for i, detail := range session.AuthorizationDetails {
		g.Go(func() error {
			resp, err := s.issuer.RequestCredential(ctx, md.CredentialEndpoint, session.TokenResponse.AccessToken,
				models.NewCredentialRequest(detail, proof))
			if err != nil {
				s.metrics.IncCredentialRequest("rejected")
				s.logRejection(ctx, session, detail, err)
				return nil
			}
			results[i] = &issued{detail: detail, response: resp}
			return nil
		})
	}
	_ = g.Wait()

	if !s.sessions.DeleteIfCurrent(ctx, session.UserIdentity, session.ID) {
		s.logger.InfoContext(ctx, "issuance_session_superseded",
			"identity", session.UserIdentity.String(),
			"session_id", session.ID.String(),
		)
	}

	deferred := lo.Filter(results, func(i *issued, _ int) bool {
		return i != nil && i.response.IsDeferred()
	})
	immediate := lo.Filter(results, func(i *issued, _ int) bool {
		return i != nil && !i.response.IsDeferred()
	})

	snapshot := session.Snapshot()
	for _, d := range deferred {
		s.metrics.IncCredentialRequest("deferred")
		s.tasks.detach(ctx, snapshot.UserIdentity, func(ctx context.Context) {
			s.pollDeferred(ctx, snapshot, d.detail, d.response.AcceptanceToken)
		})
	}
	storeFailed := 0
	for _, i := range immediate {
		s.metrics.IncCredentialRequest("issued")
		if err := s.store(ctx, snapshot, i); err != nil {
			storeFailed++
		}
	}
	s.logger.InfoContext(ctx, "credential_fanout_settled",
		"identity", session.UserIdentity.String(),
		"session_id", session.ID.String(),
		"requested", len(results),
		"issued", len(immediate),
		"deferred", len(deferred),
		"store_failed", storeFailed,
	)
	return nil
}

func (s *Service) logRejection(ctx context.Context, session models.Session, detail models.AuthorizationDetail, err error) {
	attrs := []any{
		"identity", session.UserIdentity.String(),
		"session_id", session.ID.String(),
		"format", detail.Format,
		"types", detail.Types,
		"error", err,
	}
	if upstream, ok := client.AsUpstream(err); ok {
		attrs = append(attrs, "status", upstream.StatusCode, "body", string(upstream.Body))
	}
	s.logger.ErrorContext(ctx, "credential_request_rejected", attrs...)
}
