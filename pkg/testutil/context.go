package testutil

import (
	"context"
	"net/http"

	"vcwallet/pkg/domain"
	"vcwallet/pkg/requestcontext"
)

// WithIdentity adds a wallet identity to the request context, as the auth
// middleware does for authenticated requests. Blank identities are ignored.
func WithIdentity(req *http.Request, identity string) *http.Request {
	parsed, err := domain.ParseIdentity(identity)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithIdentity(req.Context(), parsed))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
