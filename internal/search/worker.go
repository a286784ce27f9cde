package search

import (
	"context"
	"fmt"

	"github.com/dreamware/keysweep/internal/partition"
)

// StopReason explains why a worker left its scan loop.
type StopReason string

const (
	// StopExhausted means the worker tested every key of its range.
	StopExhausted StopReason = "exhausted"
	// StopFound means the worker's hit won the commit.
	StopFound StopReason = "found"
	// StopLostRace means the worker hit a key but another worker committed first.
	StopLostRace StopReason = "lost_race"
	// StopSignalled means the worker observed a terminal signal at a poll point.
	StopSignalled StopReason = "signalled"
	// StopCancelled means the context was cancelled (shutdown or a sibling fault).
	StopCancelled StopReason = "cancelled"
	// StopFailed means the predicate or the commit hook returned an error.
	StopFailed StopReason = "failed"
)

// WorkerReport summarises one worker after the process returns.
type WorkerReport struct {
	Thread     int             `json:"thread"`
	Range      partition.Range `json:"range"`
	KeysTested uint64          `json:"keys_tested"`
	Stop       StopReason      `json:"stop"`
}

// worker scans one thread range of a process in increasing key order.
type worker struct {
	proc   *Process
	report WorkerReport
	poller bool // only thread 0 touches the inter-process channel
}

// run executes the scan loop.
//
// The termination signal and the context are consulted every PollEvery
// candidates, starting with the first one. A worker that is mid-trial always
// finishes that trial, so after the signal turns terminal a worker performs at
// most PollEvery further predicate calls.
func (w *worker) run(ctx context.Context) error {
	p := w.proc
	every := p.cfg.PollEvery
	lower, upper := w.report.Range.Lower, w.report.Range.Upper

	var unflushed uint64
	defer func() {
		p.tested.Add(unflushed)
	}()

	for key := lower; key < upper; key++ {
		if (key-lower)%every == 0 {
			p.tested.Add(unflushed)
			unflushed = 0

			if w.poller && p.poll != nil {
				p.poll()
			}
			if p.signal.Done() {
				w.report.Stop = StopSignalled
				return nil
			}
			if err := ctx.Err(); err != nil {
				w.report.Stop = StopCancelled
				return err
			}
		}

		hit, err := p.predicate(key)
		w.report.KeysTested++
		unflushed++
		if err != nil {
			w.report.Stop = StopFailed
			return &TrialError{Key: key, Peer: p.cfg.Peer, Thread: w.report.Thread, Err: err}
		}
		if !hit {
			continue
		}

		won, err := p.commit(ctx, key, w.report.Thread)
		switch {
		case err != nil:
			w.report.Stop = StopFailed
			return fmt.Errorf("commit key %d: %w", key, err)
		case won:
			w.report.Stop = StopFound
		default:
			w.report.Stop = StopLostRace
		}
		return nil
	}

	w.report.Stop = StopExhausted
	return nil
}
