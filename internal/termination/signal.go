// Package termination provides the per-process termination signal shared by
// every worker of a search process.
//
// The signal is a tri-state cell: Unset, FoundLocal(key) or FoundRemote(key).
// It is commit-once: the first writer wins and every later write, whether it
// carries the same key or a different one, is a no-op. Readers never block.
package termination

import (
	"fmt"
	"sync/atomic"
)

// State enumerates the three states of a Signal.
type State int

const (
	// Unset means no key has been found yet.
	Unset State = iota
	// FoundLocal means a worker of this process found the key.
	FoundLocal
	// FoundRemote means another peer announced the key.
	FoundRemote
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Unset:
		return "unset"
	case FoundLocal:
		return "found_local"
	case FoundRemote:
		return "found_remote"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Verdict is the value held by a Signal.
//
// For FoundLocal, Peer is the local peer index; for FoundRemote it is the
// announcing peer. Thread is the finder's worker index. The zero Verdict is
// Unset.
type Verdict struct {
	State  State  `json:"state"`
	Key    uint64 `json:"key"`
	Peer   int    `json:"peer"`
	Thread int    `json:"thread"`
}

// Terminal reports whether the verdict carries a found key.
func (v Verdict) Terminal() bool {
	return v.State != Unset
}

// Signal is a commit-once termination cell. The zero value is ready to use
// and reads as Unset.
type Signal struct {
	v atomic.Pointer[Verdict]
}

// New returns an Unset signal.
func New() *Signal {
	return &Signal{}
}

// CommitLocal attempts the Unset → FoundLocal transition.
// It returns true only for the single caller whose compare-and-swap wins;
// every other caller, concurrent or later, gets false and must discard its hit.
func (s *Signal) CommitLocal(key uint64, peer, thread int) bool {
	return s.v.CompareAndSwap(nil, &Verdict{State: FoundLocal, Key: key, Peer: peer, Thread: thread})
}

// ApplyRemote attempts the Unset → FoundRemote transition for a key announced
// by another peer. Applying any announcement to an already terminal signal is
// a no-op and returns false.
func (s *Signal) ApplyRemote(key uint64, peer, thread int) bool {
	return s.v.CompareAndSwap(nil, &Verdict{State: FoundRemote, Key: key, Peer: peer, Thread: thread})
}

// Load returns the current verdict.
func (s *Signal) Load() Verdict {
	if v := s.v.Load(); v != nil {
		return *v
	}
	return Verdict{}
}

// Done reports whether the signal has left the Unset state.
func (s *Signal) Done() bool {
	return s.v.Load() != nil
}
