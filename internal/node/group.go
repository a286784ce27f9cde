package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/keysweep/internal/coordinator"
	"github.com/dreamware/keysweep/internal/partition"
	"github.com/dreamware/keysweep/internal/platform/metrics"
	"github.com/dreamware/keysweep/internal/search"
	"github.com/dreamware/keysweep/internal/transport"
)

// GroupConfig describes an in-process peer group.
type GroupConfig struct {
	Config
	Peers    int    // Number of peers
	Reporter int    // Index of the reporting peer
	RunID    string // Generated when empty
}

// GroupResult is the outcome of an in-process run plus every peer's report.
type GroupResult struct {
	RunID   string              `json:"run_id"`
	Outcome coordinator.Outcome `json:"outcome"`
	Reports []Report            `json:"reports"`
}

// Group runs every peer of a search as goroutines of one process. Peers
// still share nothing but an in-memory transport and the predicate.
type Group struct {
	runID      string
	nodes      []*Node
	transports []*transport.Memory
}

// NewGroup validates cfg and builds one node per peer.
func NewGroup(cfg GroupConfig, predicate search.Predicate, opts ...Option) (*Group, error) {
	if _, err := partition.NewPlan(cfg.Space, cfg.Peers, cfg.Threads); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	trs, err := transport.NewMemoryGroup(cfg.Peers)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	logger, m := sharedSettings(opts)
	g := &Group{runID: runID, transports: trs, nodes: make([]*Node, cfg.Peers)}
	for i, tr := range trs {
		var n *Node
		ex, err := coordinator.NewExchange(tr,
			coordinator.WithRunID(runID),
			coordinator.WithReporter(cfg.Reporter),
			coordinator.WithLogger(logger),
			coordinator.WithMetrics(m),
		)
		if err == nil {
			n, err = New(cfg.Config, ex, predicate, opts...)
		}
		if err != nil {
			g.close()
			return nil, fmt.Errorf("%w: peer %d: %w", ErrInvalidConfig, i, err)
		}
		g.nodes[i] = n
	}
	return g, nil
}

// RunID returns the identifier stamped on every message of the run.
func (g *Group) RunID() string { return g.runID }

// Nodes returns the peers, indexed by peer.
func (g *Group) Nodes() []*Node { return g.nodes }

// Progress sums the progress of every peer.
func (g *Group) Progress() search.Progress {
	var total search.Progress
	for _, n := range g.nodes {
		total = total.Add(n.Progress())
	}
	return total
}

// Run starts every peer and waits for all of them. A failing peer cancels
// the others; the returned error joins every peer error that is not a
// consequence of that cancellation.
func (g *Group) Run(ctx context.Context) (GroupResult, error) {
	defer g.close()

	start := time.Now()
	reports := make([]Report, len(g.nodes))
	errs := make([]error, len(g.nodes))

	eg, egctx := errgroup.WithContext(ctx)
	for i, n := range g.nodes {
		eg.Go(func() error {
			reports[i], errs[i] = n.Run(egctx)
			return errs[i]
		})
	}
	if eg.Wait() != nil {
		return GroupResult{RunID: g.runID, Reports: reports}, g.joinErrors(ctx, errs)
	}

	res := GroupResult{RunID: g.runID, Reports: reports}
	for _, r := range reports {
		if r.Outcome != nil {
			res.Outcome = *r.Outcome
		}
	}
	res.Outcome.KeysTested = 0
	for _, r := range reports {
		res.Outcome.KeysTested += r.Result.KeysTested
	}
	res.Outcome.Elapsed = time.Since(start)
	return res, nil
}

func (g *Group) joinErrors(ctx context.Context, errs []error) error {
	var kept []error
	for i, err := range errs {
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		kept = append(kept, fmt.Errorf("peer %d: %w", i, err))
	}
	if len(kept) == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return context.Canceled
	}
	return errors.Join(kept...)
}

func (g *Group) close() {
	for _, tr := range g.transports {
		tr.Close()
	}
}

// RunGroup builds an in-process group and runs it.
func RunGroup(ctx context.Context, cfg GroupConfig, predicate search.Predicate, opts ...Option) (GroupResult, error) {
	g, err := NewGroup(cfg, predicate, opts...)
	if err != nil {
		return GroupResult{}, err
	}
	return g.Run(ctx)
}

// sharedSettings reads the logger and metrics an option list would apply to
// a node, so the group's exchanges use the same ones.
func sharedSettings(opts []Option) (*slog.Logger, *metrics.Metrics) {
	n := &Node{}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return n.logger, n.metrics
}
