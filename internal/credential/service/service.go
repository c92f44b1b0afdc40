// Package service exposes the holder's stored credentials and presentations.
package service

import (
	"context"
	"errors"
	"log/slog"

	credmodels "vcwallet/internal/credential/models"
	presmodels "vcwallet/internal/presentation/models"
	usermodels "vcwallet/internal/user/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/sentinel"
)

// CredentialStore persists credentials.
type CredentialStore interface {
	ListByHolder(ctx context.Context, holderDID string) ([]credmodels.Record, error)
	FindByIdentifier(ctx context.Context, holderDID string, id domain.CredentialID) (*credmodels.Record, error)
	Delete(ctx context.Context, holderDID string, id domain.CredentialID) error
}

// PresentationStore persists presentations.
type PresentationStore interface {
	ListByHolder(ctx context.Context, holderDID string) ([]presmodels.Record, error)
	FindByIdentifier(ctx context.Context, holderDID string, id domain.PresentationID) (*presmodels.Record, error)
	DeleteByCredentialIdentifier(ctx context.Context, holderDID, credentialID string) (int, error)
	DeleteAllByHolder(ctx context.Context, holderDID string) (int, error)
}

// UserStore resolves the holder DID of an identity.
type UserStore interface {
	FindByIdentity(ctx context.Context, identity domain.Identity) (*usermodels.User, error)
}

// Transactor runs fn inside a single storage transaction.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service reads and deletes holder data.
type Service struct {
	credentials   CredentialStore
	presentations PresentationStore
	users         UserStore
	tx            Transactor
	logger        *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs the storage service.
func New(credentials CredentialStore, presentations PresentationStore, users UserStore, tx Transactor, opts ...Option) *Service {
	s := &Service{
		credentials:   credentials,
		presentations: presentations,
		users:         users,
		tx:            tx,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) ListCredentials(ctx context.Context, identity domain.Identity) ([]credmodels.Record, error) {
	holder, err := s.holderDID(ctx, identity)
	if err != nil {
		return nil, err
	}
	records, err := s.credentials.ListByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "list credentials")
	}
	return records, nil
}

func (s *Service) GetCredential(ctx context.Context, identity domain.Identity, id domain.CredentialID) (*credmodels.Record, error) {
	holder, err := s.holderDID(ctx, identity)
	if err != nil {
		return nil, err
	}
	record, err := s.credentials.FindByIdentifier(ctx, holder, id)
	if err != nil {
		return nil, translate(err, "credential not found", "find credential")
	}
	return record, nil
}

// DeleteCredential removes the credential together with every presentation
// that disclosed it, in one transaction.
func (s *Service) DeleteCredential(ctx context.Context, identity domain.Identity, id domain.CredentialID) error {
	holder, err := s.holderDID(ctx, identity)
	if err != nil {
		return err
	}
	var removed int
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.presentations.DeleteByCredentialIdentifier(ctx, holder, id.String())
		if err != nil {
			return err
		}
		removed = n
		return s.credentials.Delete(ctx, holder, id)
	})
	if err != nil {
		return translate(err, "credential not found", "delete credential")
	}
	s.logger.InfoContext(ctx, "credential_deleted",
		"credential_identifier", id.String(),
		"presentations_removed", removed,
	)
	return nil
}

func (s *Service) ListPresentations(ctx context.Context, identity domain.Identity) ([]presmodels.Record, error) {
	holder, err := s.holderDID(ctx, identity)
	if err != nil {
		return nil, err
	}
	records, err := s.presentations.ListByHolder(ctx, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "list presentations")
	}
	return records, nil
}

func (s *Service) GetPresentation(ctx context.Context, identity domain.Identity, id domain.PresentationID) (*presmodels.Record, error) {
	holder, err := s.holderDID(ctx, identity)
	if err != nil {
		return nil, err
	}
	record, err := s.presentations.FindByIdentifier(ctx, holder, id)
	if err != nil {
		return nil, translate(err, "presentation not found", "find presentation")
	}
	return record, nil
}

// DeletePresentations clears the holder's presentation history and returns
// how many records were removed.
func (s *Service) DeletePresentations(ctx context.Context, identity domain.Identity) (int, error) {
	holder, err := s.holderDID(ctx, identity)
	if err != nil {
		return 0, err
	}
	var removed int
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		n, err := s.presentations.DeleteAllByHolder(ctx, holder)
		removed = n
		return err
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorageFailure, "delete presentations")
	}
	s.logger.InfoContext(ctx, "presentations_deleted", "count", removed)
	return removed, nil
}

func (s *Service) holderDID(ctx context.Context, identity domain.Identity) (string, error) {
	user, err := s.users.FindByIdentity(ctx, identity)
	if err != nil {
		return "", translate(err, "holder not found", "find holder")
	}
	return user.DID, nil
}

func translate(err error, notFoundMsg, op string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, notFoundMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeStorageFailure, op)
}
