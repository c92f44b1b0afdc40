// Package keystore produces the signed artifacts a holder needs during
// issuance and presentation: id tokens, presentation JWTs and proofs of
// possession. Keys live either in the database (Local) or on the holder's
// device (Remote).
package keystore

import (
	"context"

	"vcwallet/pkg/domain"
)

// KeyPair identifies a generated key pair.
type KeyPair struct {
	DID string
}

// Params are additional, operation specific parameters passed through to
// the signer.
type Params map[string]any

// Keystore is the signing capability used by issuance.
type Keystore interface {
	GenerateKeyPair(ctx context.Context, identity domain.Identity) (KeyPair, error)
	CreateIDToken(ctx context.Context, identity domain.Identity, nonce, audience string, params Params) (string, error)
	SignPresentation(ctx context.Context, identity domain.Identity, nonce, audience string, credentials []string, params Params) (string, error)
	GenerateProof(ctx context.Context, identity domain.Identity, audience, nonce string, params Params) (string, error)
	Identifier(ctx context.Context, identity domain.Identity) (string, error)
}
