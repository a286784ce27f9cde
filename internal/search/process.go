package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/keysweep/internal/partition"
	"github.com/dreamware/keysweep/internal/termination"
)

// DefaultPollEvery is the default number of candidates a worker tests
// between two checks of the termination signal.
const DefaultPollEvery uint64 = 10000

// Predicate tests one candidate key. It must be safe to call concurrently
// with different keys. A non-nil error is a fault, never a "no".
type Predicate func(key uint64) (bool, error)

// CommitHook is invoked exactly once per process, by the worker whose commit
// won, with the verdict just stored in the signal.
type CommitHook func(ctx context.Context, v termination.Verdict) error

// Config describes the share of the key space one process searches.
type Config struct {
	Peer      int             // Index of this process in the peer group
	Range     partition.Range // Keys assigned to this process
	Threads   int             // Number of workers to split Range across
	PollEvery uint64          // Signal check cadence; 0 selects DefaultPollEvery
}

// Option configures a Process.
type Option func(*Process)

// WithPoller sets the hook thread 0 calls at every poll point to check for
// announcements from other peers.
func WithPoller(poll func()) Option {
	return func(p *Process) {
		p.poll = poll
	}
}

// WithCommitHook sets the hook called after a successful local commit.
func WithCommitHook(hook CommitHook) Option {
	return func(p *Process) {
		p.hook = hook
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Process) {
		p.logger = logger
	}
}

// Process is the intra-process coordinator. It owns nothing but a reference
// to the process's termination signal; it partitions its range across
// workers, runs them, and arbitrates which hit wins.
type Process struct {
	cfg       Config
	ranges    []partition.Range
	signal    *termination.Signal
	predicate Predicate
	poll      func()
	hook      CommitHook
	logger    *slog.Logger

	tested   atomic.Uint64
	started  atomic.Int64 // unix nanos, 0 until Run starts
	finished atomic.Int64 // unix nanos, 0 until Run returns
	ran      atomic.Bool
}

// Result is what a process reports once all of its workers have returned.
type Result struct {
	Verdict    termination.Verdict `json:"verdict"`
	KeysTested uint64              `json:"keys_tested"`
	Elapsed    time.Duration       `json:"elapsed"`
	Workers    []WorkerReport      `json:"workers"`
}

// Exhausted reports whether the process finished without any key being
// found, locally or remotely.
func (r Result) Exhausted() bool {
	return !r.Verdict.Terminal()
}

// NewProcess validates cfg and splits its range across cfg.Threads workers.
// It fails fast on a nil signal or predicate and on any partition error.
func NewProcess(cfg Config, signal *termination.Signal, predicate Predicate, opts ...Option) (*Process, error) {
	if signal == nil {
		return nil, fmt.Errorf("%w: nil termination signal", ErrInvalidConfig)
	}
	if predicate == nil {
		return nil, fmt.Errorf("%w: nil predicate", ErrInvalidConfig)
	}
	if cfg.PollEvery == 0 {
		cfg.PollEvery = DefaultPollEvery
	}

	ranges, err := cfg.Range.Split(cfg.Threads)
	if err != nil {
		return nil, fmt.Errorf("%w: peer %d: %w", ErrInvalidConfig, cfg.Peer, err)
	}

	p := &Process{
		cfg:       cfg,
		ranges:    ranges,
		signal:    signal,
		predicate: predicate,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Ranges returns the per-thread ranges of this process.
func (p *Process) Ranges() []partition.Range {
	return append([]partition.Range(nil), p.ranges...)
}

// Run launches one worker per thread range and blocks until every worker has
// exhausted its range, observed the termination signal, or failed.
//
// A predicate fault in any worker cancels its siblings and is returned as a
// *TrialError; the result is still filled in with what was tested.
// Run may be called only once.
func (p *Process) Run(ctx context.Context) (Result, error) {
	if !p.ran.CompareAndSwap(false, true) {
		return Result{}, errors.New("search process already ran")
	}

	start := time.Now()
	p.started.Store(start.UnixNano())
	p.logger.Debug("process starting",
		"peer", p.cfg.Peer,
		"range", p.cfg.Range.String(),
		"threads", len(p.ranges),
		"poll_every", p.cfg.PollEvery,
	)

	workers := make([]*worker, len(p.ranges))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range p.ranges {
		w := &worker{
			proc:   p,
			poller: i == 0,
			report: WorkerReport{Thread: i, Range: r},
		}
		workers[i] = w
		g.Go(func() error {
			return w.run(gctx)
		})
	}
	err := g.Wait()

	end := time.Now()
	p.finished.Store(end.UnixNano())

	res := Result{
		Verdict:    p.signal.Load(),
		KeysTested: p.tested.Load(),
		Elapsed:    end.Sub(start),
		Workers:    make([]WorkerReport, len(workers)),
	}
	for i, w := range workers {
		res.Workers[i] = w.report
	}

	if err != nil {
		p.logger.Error("process failed", "peer", p.cfg.Peer, "error", err)
		return res, err
	}
	p.logger.Debug("process finished",
		"peer", p.cfg.Peer,
		"state", res.Verdict.State.String(),
		"keys_tested", res.KeysTested,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// commit is the single mutual-exclusion point of the process: the signal's
// compare-and-swap admits at most one FoundLocal transition, and only the
// winner hands the key on to the commit hook.
func (p *Process) commit(ctx context.Context, key uint64, thread int) (bool, error) {
	if !p.signal.CommitLocal(key, p.cfg.Peer, thread) {
		p.logger.Debug("discarding hit, signal already set", "peer", p.cfg.Peer, "thread", thread, "key", key)
		return false, nil
	}

	v := p.signal.Load()
	p.logger.Info("key found", "peer", p.cfg.Peer, "thread", thread, "key", key)
	if p.hook == nil {
		return true, nil
	}
	if err := p.hook(ctx, v); err != nil {
		return true, err
	}
	return true, nil
}

// Progress returns the keys tested so far and the time spent searching.
// Counts are flushed by workers at every poll point, so the value lags by at
// most PollEvery keys per worker while running and is exact after Run.
func (p *Process) Progress() Progress {
	started := p.started.Load()
	if started == 0 {
		return Progress{}
	}
	end := p.finished.Load()
	if end == 0 {
		end = time.Now().UnixNano()
	}
	return Progress{
		KeysTested: p.tested.Load(),
		Elapsed:    time.Duration(end - started),
	}
}
