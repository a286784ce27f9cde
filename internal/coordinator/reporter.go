package coordinator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dreamware/keysweep/internal/termination"
)

var (
	// ErrPeerFault is returned by Await when a peer reports a fault.
	ErrPeerFault = errors.New("peer fault")
	// ErrNotReporter is returned by Await on a peer that is not the reporter.
	ErrNotReporter = errors.New("peer is not the reporter")
	// ErrListenCancelled is returned when the pending receive was cancelled
	// before the outcome was known.
	ErrListenCancelled = errors.New("announcement receive cancelled")
)

// Outcome is the single result of a search run.
type Outcome struct {
	Found      bool          `json:"found"`
	Key        uint64        `json:"key,omitempty"`
	Peer       int           `json:"peer"`
	Thread     int           `json:"thread"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	KeysTested uint64        `json:"keys_tested"`
}

// NotFound is the outcome of a search that exhausted the key space.
func NotFound() Outcome {
	return Outcome{Peer: -1, Thread: -1}
}

// Found is the outcome of a search whose key was found by peer and thread.
func Found(key uint64, peer, thread int) Outcome {
	return Outcome{Found: true, Key: key, Peer: peer, Thread: thread}
}

func (o Outcome) String() string {
	if !o.Found {
		return "NotFound"
	}
	return fmt.Sprintf("Found(key=%d, peer=%d, thread=%d)", o.Key, o.Peer, o.Thread)
}

// Reporter turns the local verdict of the designated peer, plus whatever the
// other peers tell it, into exactly one Outcome.
//
// Exhaustion reports are remembered across calls to Await. Await must not be
// called concurrently.
type Reporter struct {
	ex     *Exchange
	logger *slog.Logger

	exhausted map[int]uint64 // peer -> keys tested, reporter excluded
}

// NewReporter creates the reporter for ex.
func NewReporter(ex *Exchange, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Reporter{ex: ex, logger: logger, exhausted: make(map[int]uint64)}
}

// Await blocks until the outcome is known and returns it.
//
// The outcome is Found when local is terminal or the pending announcement is
// fulfilled, and NotFound once every peer, this one included, has reported
// exhaustion. A fault report from any peer ends the wait with ErrPeerFault.
// keysTested is this peer's own count; exhaustion reports add theirs.
func (r *Reporter) Await(ctx context.Context, local termination.Verdict, keysTested uint64, pending *Pending) (Outcome, error) {
	if !r.ex.IsReporter() {
		return Outcome{}, ErrNotReporter
	}

	if local.Terminal() {
		out := Found(local.Key, local.Peer, local.Thread)
		out.KeysTested = keysTested
		return out, nil
	}

	self := r.ex.Self()
	size := r.ex.Size()
	ready := pending.Ready()

	for len(r.exhausted)+1 < size {
		select {
		case <-ready:
			msg, ok := pending.TryReceive()
			if !ok {
				return Outcome{}, ErrListenCancelled
			}
			out := Found(msg.Key, msg.From, msg.Thread)
			out.KeysTested = r.total(keysTested)
			return out, nil

		case msg := <-r.ex.exhaustedReports():
			if _, seen := r.exhausted[msg.From]; seen || msg.From == self {
				r.logger.Warn("duplicate exhaustion report", "from", msg.From)
				continue
			}
			r.exhausted[msg.From] = msg.KeysTested
			r.logger.Debug("peer exhausted", "from", msg.From, "remaining", size-1-len(r.exhausted))

		case msg := <-r.ex.faultReports():
			return Outcome{}, fmt.Errorf("%w: peer %d: %s", ErrPeerFault, msg.From, msg.Error)

		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}

	out := NotFound()
	out.KeysTested = r.total(keysTested)
	return out, nil
}

func (r *Reporter) total(own uint64) uint64 {
	for _, n := range r.exhausted {
		own += n
	}
	return own
}
