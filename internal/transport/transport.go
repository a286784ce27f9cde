// Package transport moves cluster messages between the members of a peer
// group. Every member has one inbox per tag; a transport never shares memory
// with its peers, even when they live in the same process.
package transport

import (
	"context"
	"errors"

	"github.com/dreamware/keysweep/internal/cluster"
)

var (
	// ErrClosed is returned when sending through, or to, a closed endpoint.
	ErrClosed = errors.New("transport closed")
	// ErrUnknownPeer is returned when a destination index is outside the group.
	ErrUnknownPeer = errors.New("unknown peer")
)

// Transport is one peer's endpoint in a group of Size peers.
//
// Send delivers msg to the inbox of peer to for msg.Tag, blocking only while
// that inbox is full. Receive returns the inbox for tag; the channel is never
// closed, so receivers must also watch their own context. Close stops
// delivery to this endpoint and releases its resources.
type Transport interface {
	Self() int
	Size() int
	Send(ctx context.Context, to int, msg cluster.Message) error
	Receive(tag cluster.Tag) <-chan cluster.Message
	Close() error
}

// inboxes holds one buffered channel per tag. Capacity equals the group size:
// every peer sends at most one message of each tag to a given receiver.
type inboxes map[cluster.Tag]chan cluster.Message

func newInboxes(size int) inboxes {
	in := make(inboxes, len(cluster.Tags))
	for _, tag := range cluster.Tags {
		in[tag] = make(chan cluster.Message, size)
	}
	return in
}

// deliver enqueues msg, giving up when ctx ends or done is closed.
func (in inboxes) deliver(ctx context.Context, done <-chan struct{}, msg cluster.Message) error {
	ch, ok := in[msg.Tag]
	if !ok {
		return cluster.ErrInvalidMessage
	}
	select {
	case <-done:
		return ErrClosed
	default:
	}
	select {
	case ch <- msg:
		return nil
	case <-done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}
