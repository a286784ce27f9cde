package partition

import (
	"fmt"
	"sort"
)

// Plan is the two-level partition of a key space: one range per peer, and
// inside every peer range one range per worker thread.
//
// A Plan is computed once at startup and is read-only afterwards, so it is
// safe to share between goroutines without locking.
type Plan struct {
	Space   uint64    `json:"space"`   // Total number of keys
	Peers   []Range   `json:"peers"`   // Peers[i] is the range of peer i
	Threads [][]Range `json:"threads"` // Threads[i][j] is thread j of peer i
}

// NewPlan partitions [0, space) across peers and then each peer range across
// threads workers.
//
// Fails fast when any level cannot be split: a zero space, zero peers, more
// peers than keys, or more threads than keys in some peer range. Nothing is
// clamped to a valid value.
//
// Example:
//
//	plan, err := NewPlan(64, 4, 2)
//	// plan.Peers   == [0,16) [16,32) [32,48) [48,64)
//	// plan.Threads[2] == [32,40) [40,48)
func NewPlan(space uint64, peers, threads int) (*Plan, error) {
	peerRanges, err := Split(space, peers)
	if err != nil {
		return nil, fmt.Errorf("partition peers: %w", err)
	}

	threadRanges := make([][]Range, len(peerRanges))
	for i, pr := range peerRanges {
		tr, err := pr.Split(threads)
		if err != nil {
			return nil, fmt.Errorf("partition threads of peer %d: %w", i, err)
		}
		threadRanges[i] = tr
	}

	return &Plan{
		Space:   space,
		Peers:   peerRanges,
		Threads: threadRanges,
	}, nil
}

// Peer returns the range assigned to peer i.
func (p *Plan) Peer(i int) Range {
	return p.Peers[i]
}

// Locate returns the peer and thread whose range contains key.
// ok is false when the key lies outside [0, Space).
func (p *Plan) Locate(key uint64) (peer, thread int, ok bool) {
	if key >= p.Space {
		return 0, 0, false
	}
	peer = locate(p.Peers, key)
	thread = locate(p.Threads[peer], key)
	return peer, thread, true
}

// locate binary-searches sorted, gap-free ranges for the one holding key.
func locate(ranges []Range, key uint64) int {
	return sort.Search(len(ranges), func(i int) bool {
		return ranges[i].Upper > key
	})
}
