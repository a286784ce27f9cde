package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dreamware/keysweep/internal/cluster"
)

// Default retry policy for HTTP sends. Peers of a group start independently,
// so the first sends may hit a peer whose server is not listening yet.
const (
	DefaultSendAttempts = 10
	DefaultSendBackoff  = 400 * time.Millisecond
)

// HTTP is a transport endpoint that posts messages to peers at
// POST {addr}/messages/{tag} and receives them through the same route,
// registered on a chi router with Register.
type HTTP struct {
	self   int
	runID  string
	peers  []cluster.PeerInfo
	in     inboxes
	logger *slog.Logger

	attempts int
	backoff  time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// HTTPOption configures an HTTP transport.
type HTTPOption func(*HTTP)

// WithRetry overrides the send retry policy.
func WithRetry(attempts int, backoff time.Duration) HTTPOption {
	return func(h *HTTP) {
		if attempts > 0 {
			h.attempts = attempts
		}
		h.backoff = backoff
	}
}

// WithRunID makes the endpoint stamp outgoing messages with runID and reject
// incoming messages from any other run.
func WithRunID(runID string) HTTPOption {
	return func(h *HTTP) {
		h.runID = runID
	}
}

// WithHTTPLogger sets the structured logger.
func WithHTTPLogger(logger *slog.Logger) HTTPOption {
	return func(h *HTTP) {
		h.logger = logger
	}
}

// NewHTTP creates the endpoint of peer self. peers lists every member of the
// group, self included, in index order. Addresses without a scheme are
// reached over plain http.
func NewHTTP(self int, peers []cluster.PeerInfo, opts ...HTTPOption) (*HTTP, error) {
	if self < 0 || self >= len(peers) {
		return nil, fmt.Errorf("peer %d of %d: %w", self, len(peers), ErrUnknownPeer)
	}
	normalized := make([]cluster.PeerInfo, len(peers))
	for i, p := range peers {
		if p.Addr == "" {
			return nil, fmt.Errorf("peer %d has no address: %w", i, ErrUnknownPeer)
		}
		p.Addr = p.BaseURL()
		normalized[i] = p
	}
	h := &HTTP{
		self:     self,
		peers:    normalized,
		in:       newInboxes(len(peers)),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		attempts: DefaultSendAttempts,
		backoff:  DefaultSendBackoff,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the message route on r.
func (h *HTTP) Register(r chi.Router) {
	r.Post("/messages/{tag}", h.handleMessage)
}

func (h *HTTP) Self() int { return h.self }

func (h *HTTP) Size() int { return len(h.peers) }

// Send posts msg to peer to, retrying network errors and transient status
// codes until the attempts run out or ctx ends.
func (h *HTTP) Send(ctx context.Context, to int, msg cluster.Message) error {
	if to < 0 || to >= len(h.peers) {
		return fmt.Errorf("send to %d: %w", to, ErrUnknownPeer)
	}
	select {
	case <-h.done:
		return ErrClosed
	default:
	}
	if msg.RunID == "" {
		msg.RunID = h.runID
	}
	if err := msg.Validate(len(h.peers)); err != nil {
		return err
	}

	url := h.peers[to].Addr + "/messages/" + string(msg.Tag)
	var lastErr error
	for i := 0; i < h.attempts; i++ {
		lastErr = cluster.PostJSON(ctx, url, msg, nil)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || ctx.Err() != nil {
			break
		}
		h.logger.Debug("send retry", "to", to, "tag", string(msg.Tag), "attempt", i+1, "error", lastErr)
		select {
		case <-time.After(h.backoff):
		case <-ctx.Done():
			return fmt.Errorf("send %s to %d: %w", msg.Tag, to, ctx.Err())
		case <-h.done:
			return ErrClosed
		}
	}
	return fmt.Errorf("send %s to %d: %w", msg.Tag, to, lastErr)
}

func retryable(err error) bool {
	var statusErr *cluster.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (h *HTTP) Receive(tag cluster.Tag) <-chan cluster.Message {
	return h.in[tag]
}

// Close stops accepting messages; later posts are answered with 503.
func (h *HTTP) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// handleMessage accepts one message for this endpoint.
//
// Responses:
//   - 204 No Content: message queued
//   - 400 Bad Request: unknown tag, bad body or sender
//   - 409 Conflict: message belongs to another run
//   - 503 Service Unavailable: endpoint closed
func (h *HTTP) handleMessage(w http.ResponseWriter, r *http.Request) {
	tag := cluster.Tag(chi.URLParam(r, "tag"))
	if !tag.Valid() {
		http.Error(w, "unknown tag", http.StatusBadRequest)
		return
	}

	var msg cluster.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid message body", http.StatusBadRequest)
		return
	}
	if msg.Tag != tag {
		http.Error(w, "tag mismatch", http.StatusBadRequest)
		return
	}
	if err := msg.Validate(len(h.peers)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.runID != "" && msg.RunID != h.runID {
		h.logger.Warn("dropping message from another run", "run_id", msg.RunID, "from", msg.From)
		http.Error(w, "run id mismatch", http.StatusConflict)
		return
	}

	if err := h.in.deliver(r.Context(), h.done, msg); err != nil {
		if errors.Is(err, ErrClosed) {
			http.Error(w, "closed", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.logger.Debug("message received", "tag", string(msg.Tag), "from", msg.From)
	w.WriteHeader(http.StatusNoContent)
}
