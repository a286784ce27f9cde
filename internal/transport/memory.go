package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/dreamware/keysweep/internal/cluster"
)

// Memory is an in-process transport endpoint. Endpoints created together by
// NewMemoryGroup deliver to each other through buffered channels.
type Memory struct {
	self  int
	group []*Memory
	in    inboxes

	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryGroup creates size connected endpoints, indexed by peer.
func NewMemoryGroup(size int) ([]*Memory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("memory group of %d peers: %w", size, ErrUnknownPeer)
	}
	group := make([]*Memory, size)
	for i := range group {
		group[i] = &Memory{
			self: i,
			in:   newInboxes(size),
			done: make(chan struct{}),
		}
	}
	for _, m := range group {
		m.group = group
	}
	return group, nil
}

func (m *Memory) Self() int { return m.self }

func (m *Memory) Size() int { return len(m.group) }

// Send delivers msg to peer to. Sending from or to a closed endpoint fails
// with ErrClosed.
func (m *Memory) Send(ctx context.Context, to int, msg cluster.Message) error {
	if to < 0 || to >= len(m.group) {
		return fmt.Errorf("send to %d: %w", to, ErrUnknownPeer)
	}
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	if err := msg.Validate(len(m.group)); err != nil {
		return err
	}
	if err := m.group[to].in.deliver(ctx, m.group[to].done, msg); err != nil {
		return fmt.Errorf("send %s to %d: %w", msg.Tag, to, err)
	}
	return nil
}

func (m *Memory) Receive(tag cluster.Tag) <-chan cluster.Message {
	return m.in[tag]
}

// Close marks the endpoint closed. It is safe to call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}
