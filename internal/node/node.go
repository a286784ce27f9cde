// Package node assembles one member of a search group: a termination signal,
// a worker pool over the peer's slice of the key space, and the exchange that
// links it to the other peers.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dreamware/keysweep/internal/cluster"
	"github.com/dreamware/keysweep/internal/coordinator"
	"github.com/dreamware/keysweep/internal/partition"
	"github.com/dreamware/keysweep/internal/platform/metrics"
	"github.com/dreamware/keysweep/internal/search"
	"github.com/dreamware/keysweep/internal/termination"
)

var tracer = otel.Tracer("keysweep.node")

// ErrInvalidConfig is returned by New and NewGroup for unusable settings.
var ErrInvalidConfig = errors.New("invalid node config")

// Config describes the search shared by every peer of a group.
type Config struct {
	Space     uint64 // Size of the key space [0, Space)
	Threads   int    // Workers per peer
	PollEvery uint64 // Signal check cadence; 0 selects search.DefaultPollEvery
}

// Report is what one peer knows after its run.
type Report struct {
	Peer    int                  `json:"peer"`
	Range   partition.Range      `json:"range"`
	Verdict termination.Verdict  `json:"verdict"`
	Result  search.Result        `json:"result"`
	Outcome *coordinator.Outcome `json:"outcome,omitempty"` // Set on the reporter only
}

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// WithMetrics sets the Prometheus instruments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Node) {
		n.metrics = m
	}
}

// Node is one peer of a search group.
type Node struct {
	cfg      Config
	plan     *partition.Plan
	ex       *coordinator.Exchange
	signal   *termination.Signal
	proc     *search.Process
	reporter *coordinator.Reporter
	logger   *slog.Logger
	metrics  *metrics.Metrics

	pending *coordinator.Pending // set by Run before the workers start
	ran     atomic.Bool
}

// New builds the peer behind ex. The plan is derived from cfg and the group
// size, and every partition error is returned before anything runs.
func New(cfg Config, ex *coordinator.Exchange, predicate search.Predicate, opts ...Option) (*Node, error) {
	if ex == nil {
		return nil, fmt.Errorf("%w: nil exchange", ErrInvalidConfig)
	}
	plan, err := partition.NewPlan(cfg.Space, ex.Size(), cfg.Threads)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	n := &Node{
		cfg:    cfg,
		plan:   plan,
		ex:     ex,
		signal: termination.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(n)
	}

	n.proc, err = search.NewProcess(search.Config{
		Peer:      ex.Self(),
		Range:     plan.Peer(ex.Self()),
		Threads:   cfg.Threads,
		PollEvery: cfg.PollEvery,
	}, n.signal, predicate,
		search.WithPoller(n.poll),
		search.WithCommitHook(n.announce),
		search.WithLogger(n.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if ex.IsReporter() {
		n.reporter = coordinator.NewReporter(ex, n.logger)
	}
	return n, nil
}

// Peer returns the index of this peer.
func (n *Node) Peer() int { return n.ex.Self() }

// IsReporter reports whether this peer produces the outcome.
func (n *Node) IsReporter() bool { return n.ex.IsReporter() }

// Plan returns the partition plan of the whole group.
func (n *Node) Plan() *partition.Plan { return n.plan }

// Progress returns this peer's keys tested so far and its elapsed time.
func (n *Node) Progress() search.Progress { return n.proc.Progress() }

// Verdict returns the current value of this peer's termination signal.
func (n *Node) Verdict() termination.Verdict { return n.signal.Load() }

// Run searches this peer's range and, on the reporter, waits for the
// outcome of the whole group.
//
// Sequence:
//  1. Post the announcement receive
//  2. Run the worker pool; thread 0 polls the receive
//  3. On a fault, report it to the reporter and return it
//  4. Poll once more, then report exhaustion if nothing was found
//  5. On the reporter, await the outcome
//  6. Drain the receive
func (n *Node) Run(ctx context.Context) (Report, error) {
	if !n.ran.CompareAndSwap(false, true) {
		return Report{}, errors.New("node already ran")
	}

	peer := n.ex.Self()
	ctx, span := tracer.Start(ctx, "node.run",
		trace.WithAttributes(
			attribute.Int("peer", peer),
			attribute.Int("threads", n.cfg.Threads),
			attribute.String("range", n.plan.Peer(peer).String()),
			attribute.Bool("reporter", n.IsReporter()),
		),
	)
	defer span.End()

	start := time.Now()
	n.pending = n.ex.Listen(ctx)
	defer n.pending.CancelAndAwait()

	n.logger.Info("peer searching", "peer", peer, "range", n.plan.Peer(peer).String(), "threads", n.cfg.Threads)
	res, err := n.proc.Run(ctx)
	n.metrics.AddKeysTested(peer, res.KeysTested)
	n.metrics.ObserveSearch(res.Elapsed)

	report := Report{Peer: peer, Range: n.plan.Peer(peer), Result: res}
	if err != nil {
		if ctx.Err() == nil {
			if ferr := n.ex.ReportFault(ctx, err); ferr != nil {
				err = errors.Join(err, ferr)
			}
		}
		if n.IsReporter() {
			n.metrics.RecordOutcome(metrics.ResultFailed)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		report.Verdict = n.signal.Load()
		return report, err
	}

	n.poll()
	report.Verdict = n.signal.Load()
	span.SetAttributes(
		attribute.String("verdict", report.Verdict.State.String()),
		attribute.Int64("keys_tested", int64(res.KeysTested)),
	)

	if !report.Verdict.Terminal() && !n.IsReporter() {
		if err := n.ex.ReportExhausted(ctx, res.KeysTested); err != nil {
			span.RecordError(err)
			return report, err
		}
		n.logger.Info("peer exhausted", "peer", peer, "keys_tested", res.KeysTested)
	}
	if !n.IsReporter() {
		return report, nil
	}

	out, err := n.reporter.Await(ctx, report.Verdict, res.KeysTested, n.pending)
	if err != nil {
		n.metrics.RecordOutcome(metrics.ResultFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	out.Elapsed = time.Since(start)
	report.Outcome = &out
	if out.Found {
		n.metrics.RecordOutcome(metrics.ResultFound)
	} else {
		n.metrics.RecordOutcome(metrics.ResultNotFound)
	}
	n.logger.Info("search finished", "outcome", out.String(), "elapsed", out.Elapsed)
	return report, nil
}

// poll applies an announcement from the group, if one has arrived.
func (n *Node) poll() {
	msg, ok := n.pending.TryReceive()
	if !ok {
		return
	}
	n.applyRemote(msg)
}

func (n *Node) applyRemote(msg cluster.Message) {
	if !n.signal.ApplyRemote(msg.Key, msg.From, msg.Thread) {
		return
	}
	n.ex.ObserveAnnouncement()
	n.logger.Info("key announced by peer", "peer", n.ex.Self(), "from", msg.From, "key", msg.Key)
}

func (n *Node) announce(ctx context.Context, v termination.Verdict) error {
	return n.ex.Announce(ctx, v.Key, v.Thread)
}
