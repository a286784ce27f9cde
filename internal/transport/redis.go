package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dreamware/keysweep/internal/cluster"
)

const (
	// DefaultMailboxTTL bounds how long undelivered messages outlive a run.
	DefaultMailboxTTL = time.Hour
	// DefaultPopTimeout is the BLPOP timeout of each receive loop iteration.
	DefaultPopTimeout = time.Second

	closeTimeout = 5 * time.Second
)

// Redis is a brokered transport endpoint. Every (run, launch, peer, tag)
// tuple owns a Redis list used as a mailbox: senders RPUSH, the owner BLPOPs.
// Messages pushed before the owner starts are kept, unlike pub/sub.
//
// The launch id separates successive launches of the same run. Mail sent to
// a peer that already exited stays in its mailbox until the TTL expires, and
// a later launch must not read it.
type Redis struct {
	client   *redis.Client
	runID    string
	launchID string
	self     int
	size   int
	in     inboxes
	logger *slog.Logger

	ttl        time.Duration
	popTimeout time.Duration

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// RedisOption configures a Redis transport.
type RedisOption func(*Redis)

// WithMailboxTTL sets the expiry refreshed on a mailbox at every send.
func WithMailboxTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		r.ttl = ttl
	}
}

// WithPopTimeout sets the blocking pop timeout.
func WithPopTimeout(d time.Duration) RedisOption {
	return func(r *Redis) {
		r.popTimeout = d
	}
}

// WithRedisLogger sets the structured logger.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(r *Redis) {
		r.logger = logger
	}
}

// NewRedis creates the endpoint of peer self in a group of size peers for
// launch launchID of run runID, and starts one receive loop per tag. Every
// peer of one launch must be given the same launch id, and no two launches
// of a run may share one. Close stops the loops; the client is owned by the
// caller.
func NewRedis(client *redis.Client, runID, launchID string, self, size int, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	if runID == "" {
		return nil, errors.New("empty run id")
	}
	if launchID == "" {
		return nil, errors.New("empty launch id")
	}
	if self < 0 || self >= size {
		return nil, fmt.Errorf("peer %d of %d: %w", self, size, ErrUnknownPeer)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Redis{
		client:     client,
		runID:      runID,
		launchID:   launchID,
		self:       self,
		size:       size,
		in:         newInboxes(size),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		ttl:        DefaultMailboxTTL,
		popTimeout: DefaultPopTimeout,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, tag := range cluster.Tags {
		r.wg.Add(1)
		go r.receiveLoop(ctx, tag)
	}
	return r, nil
}

// MailboxKey returns the list key holding messages of tag for peer.
func MailboxKey(runID, launchID string, peer int, tag cluster.Tag) string {
	return fmt.Sprintf("keysweep:%s:%s:%d:%s", runID, launchID, peer, tag)
}

func (r *Redis) Self() int { return r.self }

func (r *Redis) Size() int { return r.size }

// Send appends msg to the mailbox of peer to and refreshes its expiry.
func (r *Redis) Send(ctx context.Context, to int, msg cluster.Message) error {
	if to < 0 || to >= r.size {
		return fmt.Errorf("send to %d: %w", to, ErrUnknownPeer)
	}
	select {
	case <-r.done:
		return ErrClosed
	default:
	}
	msg.RunID = r.runID
	if err := msg.Validate(r.size); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := MailboxKey(r.runID, r.launchID, to, msg.Tag)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("send %s to %d: %w", msg.Tag, to, err)
	}
	return nil
}

func (r *Redis) Receive(tag cluster.Tag) <-chan cluster.Message {
	return r.in[tag]
}

// Close stops the receive loops, waits for them, and deletes this peer's
// mailboxes along with anything still queued in them. Safe to call twice.
func (r *Redis) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.cancel()
		r.wg.Wait()

		keys := make([]string, len(cluster.Tags))
		for i, tag := range cluster.Tags {
			keys[i] = MailboxKey(r.runID, r.launchID, r.self, tag)
		}
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			r.closeErr = fmt.Errorf("delete mailboxes: %w", err)
		}
	})
	return r.closeErr
}

func (r *Redis) receiveLoop(ctx context.Context, tag cluster.Tag) {
	defer r.wg.Done()
	key := MailboxKey(r.runID, r.launchID, r.self, tag)

	for ctx.Err() == nil {
		res, err := r.client.BLPop(ctx, r.popTimeout, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("mailbox pop failed", "key", key, "error", err)
			select {
			case <-time.After(r.popTimeout):
			case <-ctx.Done():
				return
			}
			continue
		}
		// BLPOP returns [key, value].
		if len(res) != 2 {
			continue
		}

		var msg cluster.Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Warn("dropping undecodable message", "key", key, "error", err)
			continue
		}
		if err := msg.Validate(r.size); err != nil || msg.Tag != tag {
			r.logger.Warn("dropping invalid message", "key", key, "tag", string(msg.Tag), "from", msg.From)
			continue
		}
		if msg.RunID != r.runID {
			r.logger.Warn("dropping message from another run", "key", key, "run_id", msg.RunID, "from", msg.From)
			continue
		}
		if err := r.in.deliver(ctx, r.done, msg); err != nil {
			return
		}
	}
}
