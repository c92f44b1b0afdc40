package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"

	usermodels "vcwallet/internal/user/models"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/sentinel"
)

// Header types of the produced JWTs.
const (
	typJWT   = "JWT"
	typProof = "openid4vci-proof+jwt"
)

const tokenLifetime = time.Minute

var credentialsContextV1 = []string{"https://www.w3.org/2018/credentials/v1"}

// UserStore holds the key material of holders.
type UserStore interface {
	FindByIdentity(ctx context.Context, identity domain.Identity) (*usermodels.User, error)
	UpdateKeys(ctx context.Context, identity domain.Identity, did string, keys []byte) error
}

// storedKeys is the JSON document kept in the user's keys column.
type storedKeys struct {
	ID            string          `json:"id"`
	PrivateKeyJWK json.RawMessage `json:"privateKeyJwk"`
}

// Local signs with Ed25519 keys stored on the user record.
type Local struct {
	users  UserStore
	now    func() time.Time
	logger *slog.Logger
}

// LocalOption configures Local.
type LocalOption func(*Local)

// WithClock overrides the time source used for iat and exp.
func WithClock(now func() time.Time) LocalOption {
	return func(l *Local) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) {
		l.logger = logger
	}
}

// NewLocal returns a database backed keystore.
func NewLocal(users UserStore, opts ...LocalOption) *Local {
	l := &Local{users: users, now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GenerateKeyPair creates a fresh Ed25519 key, derives its did:key and
// stores both on the user record, replacing any previous key.
func (l *Local) GenerateKeyPair(ctx context.Context, identity domain.Identity) (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "generate key")
	}
	did := DIDKey(pub)
	kid := keyID(did)

	key, err := jwk.FromRaw(priv)
	if err != nil {
		return KeyPair{}, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "encode key")
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return KeyPair{}, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "encode key")
	}
	encodedKey, err := json.Marshal(key)
	if err != nil {
		return KeyPair{}, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "encode key")
	}
	doc, err := json.Marshal(storedKeys{ID: kid, PrivateKeyJWK: encodedKey})
	if err != nil {
		return KeyPair{}, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "encode key")
	}

	if err := l.users.UpdateKeys(ctx, identity, did, doc); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return KeyPair{}, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
		}
		return KeyPair{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "store key")
	}
	l.logger.InfoContext(ctx, "key_pair_generated", "identity", identity.String(), "did", did)
	return KeyPair{DID: did}, nil
}

type idTokenClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

func (l *Local) CreateIDToken(ctx context.Context, identity domain.Identity, nonce, audience string, _ Params) (string, error) {
	signer, err := l.signer(ctx, identity)
	if err != nil {
		return "", err
	}
	now := l.now()
	return signer.sign(typJWT, idTokenClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signer.did,
			Subject:   signer.did,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	})
}

type presentation struct {
	Context              []string `json:"@context"`
	Type                 []string `json:"type"`
	Holder               string   `json:"holder"`
	VerifiableCredential []string `json:"verifiableCredential"`
}

type presentationClaims struct {
	VP    presentation `json:"vp"`
	Nonce string       `json:"nonce"`
	jwt.RegisteredClaims
}

func (l *Local) SignPresentation(ctx context.Context, identity domain.Identity, nonce, audience string, credentials []string, _ Params) (string, error) {
	signer, err := l.signer(ctx, identity)
	if err != nil {
		return "", err
	}
	if credentials == nil {
		credentials = []string{}
	}
	now := l.now()
	return signer.sign(typJWT, presentationClaims{
		VP: presentation{
			Context:              credentialsContextV1,
			Type:                 []string{"VerifiablePresentation"},
			Holder:               signer.did,
			VerifiableCredential: credentials,
		},
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    signer.did,
			Subject:   signer.did,
			Audience:  jwt.ClaimStrings{audience},
			ID:        "urn:id:" + uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	})
}

type proofClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

func (l *Local) GenerateProof(ctx context.Context, identity domain.Identity, audience, nonce string, _ Params) (string, error) {
	signer, err := l.signer(ctx, identity)
	if err != nil {
		return "", err
	}
	return signer.sign(typProof, proofClaims{
		Nonce: nonce,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   signer.did,
			Audience: jwt.ClaimStrings{audience},
			IssuedAt: jwt.NewNumericDate(l.now()),
		},
	})
}

func (l *Local) Identifier(ctx context.Context, identity domain.Identity) (string, error) {
	user, err := l.user(ctx, identity)
	if err != nil {
		return "", err
	}
	return user.DID, nil
}

func (l *Local) user(ctx context.Context, identity domain.Identity) (*usermodels.User, error) {
	user, err := l.users.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "find user")
	}
	return user, nil
}

type keySigner struct {
	did string
	kid string
	key ed25519.PrivateKey
}

func (l *Local) signer(ctx context.Context, identity domain.Identity) (*keySigner, error) {
	user, err := l.user(ctx, identity)
	if err != nil {
		return nil, err
	}
	if !user.HasKeys() {
		return nil, dErrors.New(dErrors.CodeSignatureFailure, "no key pair generated for user")
	}
	var stored storedKeys
	if err := json.Unmarshal(user.Keys, &stored); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "decode stored keys")
	}
	key, err := jwk.ParseKey(stored.PrivateKeyJWK)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSignatureFailure, "decode private key")
	}
	var priv ed25519.PrivateKey
	if err := key.Raw(&priv); err != nil {
		return nil, dErrors.Wrap(fmt.Errorf("unsupported key type %s: %w", key.KeyType(), err),
			dErrors.CodeSignatureFailure, "decode private key")
	}
	return &keySigner{did: user.DID, kid: stored.ID, key: priv}, nil
}

func (s *keySigner) sign(typ string, claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["typ"] = typ
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeSignatureFailure, "sign token")
	}
	return signed, nil
}
