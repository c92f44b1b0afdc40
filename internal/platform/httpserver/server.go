package httpserver

import (
	"net/http"
	"time"
)

const (
	ReadHeaderTimeout = 5 * time.Second
	// IdleTimeout bounds keep-alive connections between requests. Upgraded
	// websocket connections are hijacked and no longer subject to it.
	IdleTimeout = 120 * time.Second
)

// New builds an HTTP server for addr. ReadTimeout and WriteTimeout stay zero:
// they would also cap the lifetime of the /ws upgrade handshake and its
// long-poll style signing requests.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		IdleTimeout:       IdleTimeout,
	}
}
