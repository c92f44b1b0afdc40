package signing

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vcwallet/internal/apptoken"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

// TokenValidator verifies handshake app tokens.
type TokenValidator interface {
	Validate(token string) (*apptoken.Claims, error)
}

// Handler upgrades HTTP requests to signing connections.
type Handler struct {
	hub      *Hub
	tokens   TokenValidator
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// HandlerOption configures the Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCheckOrigin overrides the upgrader origin policy.
func WithCheckOrigin(fn func(r *http.Request) bool) HandlerOption {
	return func(h *Handler) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHandler returns a websocket handler serving hub.
func NewHandler(hub *Hub, tokens TokenValidator, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.WarnContext(r.Context(), "signing_upgrade_failed", "error", err)
		return
	}
	conn := &conn{ws: ws, id: uuid.NewString()}
	ctx := context.WithoutCancel(r.Context())
	h.logger.InfoContext(ctx, "signing_connection_opened",
		"connection_id", conn.id,
		"device", DeviceName(r.UserAgent()),
		"remote_addr", r.RemoteAddr,
	)
	h.serve(ctx, conn)
}

func (h *Handler) serve(ctx context.Context, c *conn) {
	var identity domain.Identity
	defer func() {
		if !identity.IsNil() && h.hub.Unbind(identity, c) {
			h.logger.InfoContext(ctx, "signing_connection_unbound", "identity", identity.String(), "connection_id", c.id)
		}
		_ = c.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.WarnContext(ctx, "signing_connection_error", "connection_id", c.id, "error", err)
			}
			return
		}
		if identity.IsNil() {
			identity = h.handshake(ctx, c, data)
			continue
		}
		h.hub.Deliver(ctx, identity, data)
	}
}

// handshake authenticates c from its first message. A failed handshake
// leaves the connection open and unauthenticated.
func (h *Handler) handshake(ctx context.Context, c *conn, data []byte) domain.Identity {
	var hs Handshake
	if err := json.Unmarshal(data, &hs); err != nil || hs.AppToken == "" {
		h.logger.WarnContext(ctx, "signing_handshake_expected", "connection_id", c.id)
		return ""
	}
	claims, err := h.tokens.Validate(hs.AppToken)
	if err != nil {
		h.logger.WarnContext(ctx, "signing_handshake_failed",
			"connection_id", c.id,
			"reason", string(dErrors.CodeOf(err)),
		)
		return ""
	}
	identity := claims.Identity()
	if previous, replaced := h.hub.Bind(identity, c); replaced {
		h.logger.InfoContext(ctx, "signing_connection_replaced", "identity", identity.String())
		_ = previous.Close()
	}
	if err := c.WriteJSON(Ack{Type: handshakeAck}); err != nil {
		h.logger.WarnContext(ctx, "signing_ack_failed", "identity", identity.String(), "error", err)
	}
	h.logger.InfoContext(ctx, "signing_handshake_established", "identity", identity.String(), "connection_id", c.id)
	return identity
}

// conn serializes writes to one websocket.
type conn struct {
	ws *websocket.Conn
	id string

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *conn) WriteJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
