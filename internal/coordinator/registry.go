package coordinator

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/dreamware/keysweep/internal/cluster"
	"github.com/dreamware/keysweep/internal/partition"
)

// Errors returned by PeerForKey.
var (
	ErrUnregistered = errors.New("peer not registered")
	ErrOutsideSpace = errors.New("key outside key space")
)

// Assignment is the share of the key space owned by one peer.
type Assignment struct {
	Peer    cluster.PeerInfo  `json:"peer"`
	Range   partition.Range   `json:"range"`
	Threads []partition.Range `json:"threads"`
}

// Registry maps peer indexes to their identity and their slice of a
// partition plan. The plan is fixed; peers register once they are known.
//
// Thread safety:
//   - All methods are safe for concurrent use
//   - Returned values are copies
type Registry struct {
	plan  *partition.Plan
	peers map[int]cluster.PeerInfo // index -> identity
	mu    sync.RWMutex
}

// NewRegistry creates an empty registry over plan.
func NewRegistry(plan *partition.Plan) *Registry {
	return &Registry{
		plan:  plan,
		peers: make(map[int]cluster.PeerInfo),
	}
}

// Register records peer p under p.Index, replacing any earlier entry.
func (r *Registry) Register(p cluster.PeerInfo) error {
	if p.Index < 0 || p.Index >= len(r.plan.Peers) {
		return fmt.Errorf("invalid peer index %d, must be in range [0, %d)", p.Index, len(r.plan.Peers))
	}
	if p.ID == "" {
		return errors.New("peer ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[p.Index] = p
	return nil
}

// Peer returns the registered identity at index.
func (r *Registry) Peer(index int) (cluster.PeerInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[index]
	return p, ok
}

// Peers returns the registered peers ordered by index.
func (r *Registry) Peers() []cluster.PeerInfo {
	r.mu.RLock()
	out := make([]cluster.PeerInfo, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b cluster.PeerInfo) int { return a.Index - b.Index })
	return out
}

// PeerForKey routes key to the peer and thread whose range holds it.
func (r *Registry) PeerForKey(key uint64) (cluster.PeerInfo, int, error) {
	peer, thread, ok := r.plan.Locate(key)
	if !ok {
		return cluster.PeerInfo{}, 0, fmt.Errorf("key %d, space %d: %w", key, r.plan.Space, ErrOutsideSpace)
	}

	p, registered := r.Peer(peer)
	if !registered {
		return cluster.PeerInfo{}, 0, fmt.Errorf("key %d owned by peer %d: %w", key, peer, ErrUnregistered)
	}
	return p, thread, nil
}

// Assignments returns one entry per plan peer, ordered by index. Peers that
// have not registered appear with only their index set.
func (r *Registry) Assignments() []Assignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Assignment, len(r.plan.Peers))
	for i, rng := range r.plan.Peers {
		p, ok := r.peers[i]
		if !ok {
			p = cluster.PeerInfo{Index: i}
		}
		out[i] = Assignment{
			Peer:    p,
			Range:   rng,
			Threads: slices.Clone(r.plan.Threads[i]),
		}
	}
	return out
}

// NumPeers returns the group size of the plan.
func (r *Registry) NumPeers() int {
	return len(r.plan.Peers)
}
