// Package signing implements the remote signing channel: one live websocket
// per wallet identity over which the holder's device performs key
// operations, with replies correlated to outstanding requests.
package signing

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"vcwallet/internal/platform/metrics"
	"vcwallet/pkg/domain"
	dErrors "vcwallet/pkg/domain-errors"
	"vcwallet/pkg/platform/sentinel"
)

// Peer is the writing side of a device connection.
type Peer interface {
	WriteJSON(v any) error
	Close() error
}

// Hub maps identities to their bound connection and routes device replies
// to pending expectations.
type Hub struct {
	mu      sync.Mutex
	peers   map[domain.Identity]Peer
	pending map[domain.Identity][]*Expectation

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures the Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMetrics records connection and reply metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub returns a hub with no connections.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		peers:   make(map[domain.Identity]Peer),
		pending: make(map[domain.Identity][]*Expectation),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Bind registers peer as the connection of identity and returns the peer it
// replaced, if any. The caller owns closing the previous peer.
func (h *Hub) Bind(identity domain.Identity, peer Peer) (Peer, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	previous, replaced := h.peers[identity]
	h.peers[identity] = peer
	if !replaced {
		h.metrics.AddSigningConnections(1)
	}
	return previous, replaced
}

// Unbind removes the registration of identity if peer is still the bound
// connection. It reports whether anything was removed.
func (h *Hub) Unbind(identity domain.Identity, peer Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.peers[identity]
	if !ok || current != peer {
		return false
	}
	delete(h.peers, identity)
	h.metrics.AddSigningConnections(-1)
	return true
}

// Connected reports whether identity has a bound connection.
func (h *Hub) Connected(identity domain.Identity) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.peers[identity]
	return ok
}

// Send pushes msg to the connection of identity.
func (h *Hub) Send(ctx context.Context, identity domain.Identity, msg ServerMessage) error {
	h.mu.Lock()
	peer, ok := h.peers[identity]
	h.mu.Unlock()
	if !ok {
		return dErrors.Wrap(fmt.Errorf("identity %s: %w", identity, sentinel.ErrNotConnected),
			dErrors.CodeNotFound, "no signing connection bound")
	}
	if err := peer.WriteJSON(msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUpstream, "write to signing connection")
	}
	h.logger.DebugContext(ctx, "signing_request_sent",
		"identity", identity.String(),
		"message_id", msg.MessageID,
		"action", string(msg.Request.Action),
	)
	return nil
}

// Expect registers interest in the reply to correlationID. The expectation
// resolves with the first reply routed to it, matching or not.
func (h *Hub) Expect(identity domain.Identity, correlationID string, action Action) *Expectation {
	exp := &Expectation{
		hub:           h,
		identity:      identity,
		correlationID: correlationID,
		action:        action,
		done:          make(chan struct{}),
	}
	h.mu.Lock()
	h.pending[identity] = append(h.pending[identity], exp)
	h.mu.Unlock()
	return exp
}

// Request sends req under a fresh message id and waits for the correlated
// reply. The expectation is registered before the message leaves.
func (h *Hub) Request(ctx context.Context, identity domain.Identity, req Request) (*ClientMessage, error) {
	msg := ServerMessage{MessageID: uuid.NewString(), Request: req}
	exp := h.Expect(identity, msg.MessageID, req.Action)
	if err := h.Send(ctx, identity, msg); err != nil {
		h.remove(exp)
		return nil, err
	}
	return exp.Wait(ctx)
}

// Deliver routes a raw reply from the device of identity.
func (h *Hub) Deliver(ctx context.Context, identity domain.Identity, data []byte) {
	msg, decodeErr := decodeClientMessage(data)

	h.mu.Lock()
	queue := h.pending[identity]
	if len(queue) == 0 {
		h.mu.Unlock()
		h.metrics.IncSigningReply("dropped")
		h.logger.WarnContext(ctx, "signing_reply_dropped",
			"identity", identity.String(),
			"reason", "no pending request",
		)
		return
	}

	var (
		target *Expectation
		result error
	)
	idx := -1
	if decodeErr == nil {
		idx = slices.IndexFunc(queue, func(e *Expectation) bool { return e.correlationID == msg.MessageID })
	}
	switch {
	case idx >= 0:
		target = queue[idx]
		if target.action != actionOf(msg) {
			if msg.Response == nil {
				result = dErrors.Wrap(ErrFailedToReceive, dErrors.CodeParseFailure, "reply without response")
			} else {
				result = dErrors.Wrap(ErrWrongAction, dErrors.CodeProtocolMismatch, "reply action does not match")
			}
		}
	case len(queue) > 1:
		// An uncorrelated frame cannot be attributed while several requests
		// are outstanding; each keeps waiting for its own reply.
		h.mu.Unlock()
		h.metrics.IncSigningReply("dropped")
		h.logger.WarnContext(ctx, "signing_reply_dropped",
			"identity", identity.String(),
			"reason", "uncorrelated reply with several pending requests",
			"pending", len(queue),
		)
		return
	case decodeErr != nil:
		target = queue[0]
		result = dErrors.Wrap(fmt.Errorf("%w: %v", ErrFailedToReceive, decodeErr),
			dErrors.CodeParseFailure, "malformed signing reply")
	default:
		target = queue[0]
		result = dErrors.Wrap(ErrWrongMessageID, dErrors.CodeProtocolMismatch, "reply for unknown message id")
	}
	h.dropLocked(target)
	h.mu.Unlock()

	if result != nil {
		h.metrics.IncSigningReply("mismatch")
		h.logger.WarnContext(ctx, "signing_reply_rejected",
			"identity", identity.String(),
			"message_id", target.correlationID,
			"error", result.Error(),
		)
		target.resolve(nil, result)
		return
	}
	h.metrics.IncSigningReply("ok")
	target.resolve(msg, nil)
}

func actionOf(msg *ClientMessage) Action {
	if msg.Response == nil {
		return ""
	}
	return msg.Response.Action
}

func (h *Hub) remove(exp *Expectation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(exp)
}

func (h *Hub) dropLocked(exp *Expectation) {
	queue := h.pending[exp.identity]
	queue = slices.DeleteFunc(queue, func(e *Expectation) bool { return e == exp })
	if len(queue) == 0 {
		delete(h.pending, exp.identity)
		return
	}
	h.pending[exp.identity] = queue
}

// Pending returns the number of unresolved expectations of identity.
func (h *Hub) Pending(identity domain.Identity) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending[identity])
}

// Expectation is an outstanding wait for one correlated reply.
type Expectation struct {
	hub           *Hub
	identity      domain.Identity
	correlationID string
	action        Action

	once sync.Once
	done chan struct{}
	msg  *ClientMessage
	err  error
}

func (e *Expectation) resolve(msg *ClientMessage, err error) {
	e.once.Do(func() {
		e.msg = msg
		e.err = err
		close(e.done)
	})
}

// Wait blocks until a reply is routed to the expectation or ctx ends. There
// is no timeout other than ctx.
func (e *Expectation) Wait(ctx context.Context) (*ClientMessage, error) {
	select {
	case <-e.done:
		return e.msg, e.err
	case <-ctx.Done():
		e.hub.remove(e)
		return nil, ctx.Err()
	}
}
