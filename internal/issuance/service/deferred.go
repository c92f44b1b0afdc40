package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"vcwallet/internal/issuance/models"
	dErrors "vcwallet/pkg/domain-errors"
)

// pollDeferred polls the deferred credential endpoint with acceptanceToken
// at a fixed interval until a credential arrives or ctx is cancelled. There
// is no attempt limit.
func (s *Service) pollDeferred(ctx context.Context, snapshot models.Snapshot, detail models.AuthorizationDetail, acceptanceToken string) {
	endpoint := snapshot.IssuerMetadata.DeferredCredentialEndpoint
	attempt := 0

	var resp *models.CredentialResponse
	op := func() error {
		attempt++
		r, err := s.issuer.RequestDeferredCredential(ctx, endpoint, acceptanceToken)
		if err != nil {
			return err
		}
		if _, ok := r.CredentialString(); !ok {
			return dErrors.New(dErrors.CodeUpstream, "deferred response carries no credential")
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.IncDeferredPoll("retry")
		s.logger.InfoContext(ctx, "deferred_credential_pending",
			"identity", snapshot.UserIdentity.String(),
			"session_id", snapshot.SessionID.String(),
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.PollInterval), ctx)
	if err := backoff.RetryNotifyWithTimer(op, policy, notify, s.newTimer()); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.metrics.IncDeferredPoll("cancelled")
			s.logger.InfoContext(ctx, "deferred_polling_cancelled",
				"identity", snapshot.UserIdentity.String(),
				"session_id", snapshot.SessionID.String(),
				"attempts", attempt,
			)
			return
		}
		s.logger.ErrorContext(ctx, "deferred_polling_failed", "identity", snapshot.UserIdentity.String(), "error", err)
		return
	}

	s.metrics.IncDeferredPoll("ok")
	stored := s.store(ctx, snapshot, &issued{detail: detail, response: resp}) == nil
	s.logger.InfoContext(ctx, "deferred_credential_ready",
		"identity", snapshot.UserIdentity.String(),
		"session_id", snapshot.SessionID.String(),
		"attempts", attempt,
		"stored", stored,
	)
}
