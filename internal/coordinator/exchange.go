package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreamware/keysweep/internal/cluster"
	"github.com/dreamware/keysweep/internal/platform/metrics"
	"github.com/dreamware/keysweep/internal/transport"
)

var tracer = otel.Tracer("keysweep.coordinator")

const (
	// DefaultReporter is the index of the peer that produces the outcome.
	DefaultReporter = 0
	// DefaultPeerSendTimeout bounds an announcement to a peer other than the
	// reporter. Such a peer may already have exited after exhausting its range.
	DefaultPeerSendTimeout = time.Second
)

// ErrAlreadyAnnounced is returned by a second Announce on the same exchange.
var ErrAlreadyAnnounced = errors.New("key already announced")

// Exchange is the inter-process coordinator of one peer. It listens for
// announcements from the group, broadcasts this peer's own find at most once,
// and carries the exhaustion and fault reports addressed to the reporter.
type Exchange struct {
	t        transport.Transport
	runID    string
	reporter int
	logger   *slog.Logger
	metrics  *metrics.Metrics

	peerTimeout time.Duration

	announced atomic.Bool
}

// ExchangeOption configures an Exchange.
type ExchangeOption func(*Exchange)

// WithRunID stamps every outgoing message with runID.
func WithRunID(runID string) ExchangeOption {
	return func(e *Exchange) {
		e.runID = runID
	}
}

// WithReporter designates the peer that collects reports and produces the
// outcome. The default is DefaultReporter.
func WithReporter(index int) ExchangeOption {
	return func(e *Exchange) {
		e.reporter = index
	}
}

// WithPeerSendTimeout bounds each announcement to a peer other than the
// reporter. Delivery to the reporter is bounded only by the Announce context.
func WithPeerSendTimeout(d time.Duration) ExchangeOption {
	return func(e *Exchange) {
		e.peerTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ExchangeOption {
	return func(e *Exchange) {
		e.logger = logger
	}
}

// WithMetrics sets the instruments announcements are counted on.
func WithMetrics(m *metrics.Metrics) ExchangeOption {
	return func(e *Exchange) {
		e.metrics = m
	}
}

// NewExchange wraps t. It fails if the reporter index is outside the group.
func NewExchange(t transport.Transport, opts ...ExchangeOption) (*Exchange, error) {
	if t == nil {
		return nil, errors.New("nil transport")
	}
	e := &Exchange{
		t:           t,
		reporter:    DefaultReporter,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		peerTimeout: DefaultPeerSendTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.reporter < 0 || e.reporter >= t.Size() {
		return nil, fmt.Errorf("reporter %d outside group of %d: %w", e.reporter, t.Size(), transport.ErrUnknownPeer)
	}
	return e, nil
}

// Self returns this peer's index.
func (e *Exchange) Self() int { return e.t.Self() }

// Size returns the number of peers in the group.
func (e *Exchange) Size() int { return e.t.Size() }

// IsReporter reports whether this peer produces the outcome.
func (e *Exchange) IsReporter() bool { return e.t.Self() == e.reporter }

// Listen posts the non-blocking receive for an announcement. It must be
// called before the search starts; the returned Pending must be drained
// with CancelAndAwait on every exit path.
func (e *Exchange) Listen(ctx context.Context) *Pending {
	return listen(ctx, e.t.Receive(cluster.TagAnnounce))
}

// Announce broadcasts a found key to every peer, this one included. Only the
// first call sends; later calls return ErrAlreadyAnnounced.
//
// Sends run concurrently. Delivery to the reporter is required and its
// failure is returned; the other peers are only told to stop early, so a
// send to one of them is cut off after the peer send timeout and a failure
// is logged and otherwise ignored.
func (e *Exchange) Announce(ctx context.Context, key uint64, thread int) error {
	if !e.announced.CompareAndSwap(false, true) {
		return ErrAlreadyAnnounced
	}

	ctx, span := tracer.Start(ctx, "exchange.announce",
		trace.WithAttributes(
			attribute.Int("peer", e.t.Self()),
			attribute.Int("thread", thread),
			attribute.Int64("key", int64(key)),
			attribute.Int("group.size", e.t.Size()),
		),
	)
	defer span.End()

	msg := cluster.Message{
		Tag:    cluster.TagAnnounce,
		RunID:  e.runID,
		From:   e.t.Self(),
		Key:    key,
		Thread: thread,
	}
	errs := make([]error, e.t.Size())
	var wg sync.WaitGroup
	for to := 0; to < e.t.Size(); to++ {
		wg.Add(1)
		go func(to int) {
			defer wg.Done()
			sendCtx := ctx
			if to != e.reporter && e.peerTimeout > 0 {
				var cancel context.CancelFunc
				sendCtx, cancel = context.WithTimeout(ctx, e.peerTimeout)
				defer cancel()
			}
			errs[to] = e.t.Send(sendCtx, to, msg)
		}(to)
	}
	wg.Wait()

	sent := 0
	for to, err := range errs {
		if err == nil {
			sent++
			continue
		}
		if to != e.reporter {
			e.logger.Warn("announce not delivered", "peer", e.t.Self(), "to", to, "error", err)
		}
	}
	e.metrics.IncrementAnnouncementsSent(sent)

	if err := errs[e.reporter]; err != nil {
		err = fmt.Errorf("announce key %d to reporter %d: %w", key, e.reporter, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("announce failed", "peer", e.t.Self(), "key", key, "error", err)
		return err
	}
	e.logger.Info("key announced", "peer", e.t.Self(), "thread", thread, "key", key, "run_id", e.runID)
	return nil
}

// ReportExhausted tells the reporter this peer searched its whole range.
func (e *Exchange) ReportExhausted(ctx context.Context, keysTested uint64) error {
	msg := cluster.Message{
		Tag:        cluster.TagExhausted,
		RunID:      e.runID,
		From:       e.t.Self(),
		KeysTested: keysTested,
	}
	if err := e.t.Send(ctx, e.reporter, msg); err != nil {
		return fmt.Errorf("report exhausted: %w", err)
	}
	return nil
}

// ReportFault tells the reporter this peer aborted with cause.
func (e *Exchange) ReportFault(ctx context.Context, cause error) error {
	msg := cluster.Message{
		Tag:   cluster.TagFault,
		RunID: e.runID,
		From:  e.t.Self(),
		Error: cause.Error(),
	}
	if err := e.t.Send(ctx, e.reporter, msg); err != nil {
		return fmt.Errorf("report fault: %w", err)
	}
	return nil
}

// ObserveAnnouncement counts an announcement applied from another peer.
func (e *Exchange) ObserveAnnouncement() {
	e.metrics.IncrementAnnouncementsReceived()
}

func (e *Exchange) exhaustedReports() <-chan cluster.Message {
	return e.t.Receive(cluster.TagExhausted)
}

func (e *Exchange) faultReports() <-chan cluster.Message {
	return e.t.Receive(cluster.TagFault)
}
