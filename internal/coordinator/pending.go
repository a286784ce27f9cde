package coordinator

import (
	"context"

	"github.com/dreamware/keysweep/internal/cluster"
)

// Pending is an outstanding receive for one announcement. It completes when
// a message arrives or when it is cancelled, whichever happens first.
type Pending struct {
	cancel context.CancelFunc
	done   chan struct{}

	// Written once by the receiving goroutine before done is closed.
	msg cluster.Message
	ok  bool
}

func listen(ctx context.Context, inbox <-chan cluster.Message) *Pending {
	ctx, cancel := context.WithCancel(ctx)
	p := &Pending{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		select {
		case msg := <-inbox:
			p.msg, p.ok = msg, true
		case <-ctx.Done():
		}
	}()
	return p
}

// TryReceive returns the announcement if it has arrived, without blocking.
func (p *Pending) TryReceive() (cluster.Message, bool) {
	select {
	case <-p.done:
		return p.msg, p.ok
	default:
		return cluster.Message{}, false
	}
}

// Ready is closed once the receive has completed, by message or by
// cancellation.
func (p *Pending) Ready() <-chan struct{} {
	return p.done
}

// CancelAndAwait cancels the receive and waits for it to finish. If the
// announcement had already arrived it is returned with ok set. Calling it
// more than once is safe.
func (p *Pending) CancelAndAwait() (cluster.Message, bool) {
	p.cancel()
	<-p.done
	return p.msg, p.ok
}
