package coordinator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dreamware/keysweep/internal/cluster"
	"github.com/dreamware/keysweep/internal/search"
)

// Peer status values tracked by ProgressMonitor.
const (
	StatusUnknown     = "unknown"
	StatusRunning     = "running"
	StatusUnreachable = "unreachable"
)

// PeerProgress is the last known progress of one peer.
type PeerProgress struct {
	Peer             int             `json:"peer"`
	Status           string          `json:"status"`
	Progress         search.Progress `json:"progress"`
	LastCheck        time.Time       `json:"last_check"`
	ConsecutiveFails int             `json:"consecutive_fails"`
}

// FetchFunc returns the current progress of a peer.
type FetchFunc func(ctx context.Context, peer cluster.PeerInfo) (search.Progress, error)

// ProgressMonitor periodically samples the progress of every peer and hands
// each sample to a callback. It only observes; it never affects the search.
type ProgressMonitor struct {
	peers      map[int]*PeerProgress
	fetch      FetchFunc
	onProgress func(PeerProgress)
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	interval   time.Duration
	mu         sync.RWMutex
	wg         sync.WaitGroup
	maxFails   int
}

// NewProgressMonitor creates a monitor sampling every interval. By default
// it fetches GET {addr}/progress from each peer.
func NewProgressMonitor(interval time.Duration) *ProgressMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProgressMonitor{
		peers:    make(map[int]*PeerProgress),
		fetch:    fetchHTTP,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		maxFails: 3,
	}
}

// SetFetchFunction replaces how progress is obtained, e.g. by reading
// in-process nodes directly.
func (m *ProgressMonitor) SetFetchFunction(fetch FetchFunc) {
	m.fetch = fetch
}

// SetOnProgress sets the callback invoked with every successful sample.
func (m *ProgressMonitor) SetOnProgress(callback func(PeerProgress)) {
	m.onProgress = callback
}

// SetLogger sets the structured logger.
func (m *ProgressMonitor) SetLogger(logger *slog.Logger) {
	m.logger = logger
}

// Start samples immediately, then at every tick, until ctx or Stop ends it.
// It blocks; run it in its own goroutine.
func (m *ProgressMonitor) Start(ctx context.Context, peerProvider func() []cluster.PeerInfo) {
	m.wg.Add(1)
	defer m.wg.Done()

	if ctx == nil {
		ctx = m.ctx
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sampleAll(ctx, peerProvider())
	for {
		select {
		case <-ticker.C:
			m.sampleAll(ctx, peerProvider())
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Stop ends a running Start and waits for it.
func (m *ProgressMonitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *ProgressMonitor) sampleAll(ctx context.Context, peers []cluster.PeerInfo) {
	for _, p := range peers {
		m.sample(ctx, p)
	}
}

func (m *ProgressMonitor) sample(ctx context.Context, peer cluster.PeerInfo) {
	m.mu.Lock()
	state, ok := m.peers[peer.Index]
	if !ok {
		state = &PeerProgress{Peer: peer.Index, Status: StatusUnknown}
		m.peers[peer.Index] = state
	}
	m.mu.Unlock()

	p, err := m.fetch(ctx, peer)

	m.mu.Lock()
	state.LastCheck = time.Now()
	if err != nil {
		state.ConsecutiveFails++
		if state.ConsecutiveFails >= m.maxFails {
			state.Status = StatusUnreachable
		}
		fails := state.ConsecutiveFails
		m.mu.Unlock()
		m.logger.Debug("progress sample failed", "peer", peer.Index, "attempt", fails, "error", err)
		return
	}
	state.Status = StatusRunning
	state.ConsecutiveFails = 0
	state.Progress = p
	snapshot := *state
	m.mu.Unlock()

	m.logger.Info("progress",
		"peer", peer.Index,
		"keys_tested", p.KeysTested,
		"keys_per_sec", fmt.Sprintf("%.0f", p.Rate()),
	)
	if m.onProgress != nil {
		m.onProgress(snapshot)
	}
}

// Get returns a copy of the last sample of peer, or nil if never sampled.
func (m *ProgressMonitor) Get(peer int) *PeerProgress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.peers[peer]
	if !ok {
		return nil
	}
	cp := *state
	return &cp
}

// Total aggregates the last samples of every peer.
func (m *ProgressMonitor) Total() search.Progress {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total search.Progress
	for _, state := range m.peers {
		total = total.Add(state.Progress)
	}
	return total
}

func fetchHTTP(ctx context.Context, peer cluster.PeerInfo) (search.Progress, error) {
	var p search.Progress
	err := cluster.GetJSON(ctx, peer.BaseURL()+"/progress", &p)
	return p, err
}
