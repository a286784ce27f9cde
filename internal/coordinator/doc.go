// Package coordinator implements the inter-process half of a keysweep search:
// how one peer learns that another found the key, how it tells the others
// when it finds the key itself, and how the designated reporter peer turns
// all of that into a single Outcome.
//
// # Overview
//
// Each peer runs its own search.Process over its slice of the key space.
// Processes share nothing; they only exchange cluster messages through a
// transport.Transport. The coordinator sits between the two:
//
//	┌──────────────── peer i ────────────────┐
//	│                                         │
//	│  search.Process ──commit──▶ Exchange    │──announce──▶ all peers
//	│       ▲                     │           │
//	│       │ ApplyRemote    Listen/Pending   │◀─announce─── any peer
//	│  termination.Signal ◀─── TryReceive     │
//	│                                         │
//	└─────────────────────────────────────────┘
//	          │ exhausted / fault
//	          ▼
//	   Reporter (peer 0) ──▶ Outcome
//
// # Core Components
//
// Exchange: one per peer
//   - Listen posts the non-blocking receive for an announcement
//   - Announce broadcasts a found key to every peer, itself included,
//     at most once per exchange
//   - ReportExhausted and ReportFault address the reporter
//
// Pending: the outstanding receive
//   - TryReceive polls it from the search's poller thread
//   - Ready and Wait let the reporter block on it
//   - CancelAndAwait drains it on every exit path; it is idempotent
//
// Reporter: runs on the designated peer only
//   - Found if the local verdict is terminal or an announcement arrives
//   - NotFound once every peer, the reporter included, is exhausted
//   - ErrPeerFault if any peer reports a predicate fault
//
// Registry: peer index to identity and assigned range, built on a
// partition.Plan. Serves key routing and the /plan endpoint.
//
// ProgressMonitor: samples peer progress on a ticker and reports it
// through a callback. It never influences the search.
//
// # Limitations
//
// Peer failure is not detected. A peer that dies without reporting leaves
// the reporter waiting until its context ends. When several keys satisfy the
// predicate, whichever announcement is applied first wins.
//
// # Usage Example
//
//	ex, err := coordinator.NewExchange(tr, coordinator.WithRunID(runID))
//	if err != nil {
//		return err
//	}
//	pending := ex.Listen(ctx)
//	defer pending.CancelAndAwait()
//
//	// ... run the search, polling pending.TryReceive from thread 0 ...
//
//	if ex.IsReporter() {
//		out, err := coordinator.NewReporter(ex, logger).Await(ctx, verdict, tested, pending)
//	}
package coordinator
