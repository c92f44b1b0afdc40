// Package apptoken issues and verifies the HS256 application tokens that
// authenticate wallet clients, both on HTTP requests and on the signing
// channel handshake.
package apptoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
)

// Claims are the claims carried by an application token.
type Claims struct {
	DID string `json:"did"`
	jwt.RegisteredClaims
}

// Identity returns the wallet identity bound by the token.
func (c *Claims) Identity() domain.Identity {
	return domain.Identity(c.DID)
}

// Service signs and validates application tokens with a shared secret.
type Service struct {
	secret []byte
	now    func() time.Time
}

// New returns a token service using secret.
func New(secret string) *Service {
	return &Service{secret: []byte(secret), now: time.Now}
}

// Issue signs a token binding did, valid for ttl.
func (s *Service) Issue(did string, ttl time.Duration) (string, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		DID: did,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign app token")
	}
	return signed, nil
}

// Validate verifies signature and expiry and requires a did claim.
// Expired tokens are classified CodeExpired, everything else CodeUnauthorized.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeExpired, "app token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid app token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid app token claims")
	}
	if claims.DID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "app token carries no did")
	}
	return claims, nil
}
