package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/keysweep/internal/cluster"
)

func recv(t *testing.T, ch <-chan cluster.Message) cluster.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return cluster.Message{}
	}
}

// TestMemoryGroupDelivery verifies messages reach the right peer and tag.
func TestMemoryGroupDelivery(t *testing.T) {
	group, err := NewMemoryGroup(3)
	require.NoError(t, err)
	require.Len(t, group, 3)

	for i, m := range group {
		assert.Equal(t, i, m.Self())
		assert.Equal(t, 3, m.Size())
	}

	ctx := context.Background()
	require.NoError(t, group[1].Send(ctx, 2, cluster.Message{Tag: cluster.TagAnnounce, From: 1, Key: 99}))
	require.NoError(t, group[0].Send(ctx, 2, cluster.Message{Tag: cluster.TagExhausted, From: 0, KeysTested: 10}))

	got := recv(t, group[2].Receive(cluster.TagAnnounce))
	assert.Equal(t, uint64(99), got.Key)
	assert.Equal(t, 1, got.From)

	got = recv(t, group[2].Receive(cluster.TagExhausted))
	assert.Equal(t, uint64(10), got.KeysTested)

	select {
	case m := <-group[2].Receive(cluster.TagFault):
		t.Fatalf("unexpected fault message %+v", m)
	default:
	}
}

// TestMemorySendToSelf verifies a peer can deliver to its own inbox.
func TestMemorySendToSelf(t *testing.T) {
	group, err := NewMemoryGroup(1)
	require.NoError(t, err)

	require.NoError(t, group[0].Send(context.Background(), 0, cluster.Message{Tag: cluster.TagAnnounce, From: 0, Key: 5}))
	assert.Equal(t, uint64(5), recv(t, group[0].Receive(cluster.TagAnnounce)).Key)
}

// TestMemoryInboxCapacity verifies one message per peer per tag never blocks.
func TestMemoryInboxCapacity(t *testing.T) {
	const size = 7
	group, err := NewMemoryGroup(size)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < size; i++ {
		wg.Add(1)
		go func(from int) {
			defer wg.Done()
			assert.NoError(t, group[from].Send(ctx, 0, cluster.Message{Tag: cluster.TagExhausted, From: from}))
		}(i)
	}
	wg.Wait()
	assert.Len(t, group[0].Receive(cluster.TagExhausted), size)
}

// TestMemorySendErrors covers invalid destinations, messages and closed peers.
func TestMemorySendErrors(t *testing.T) {
	group, err := NewMemoryGroup(2)
	require.NoError(t, err)
	ctx := context.Background()

	err = group[0].Send(ctx, 2, cluster.Message{Tag: cluster.TagAnnounce})
	assert.ErrorIs(t, err, ErrUnknownPeer)

	err = group[0].Send(ctx, 1, cluster.Message{Tag: "bogus"})
	assert.ErrorIs(t, err, cluster.ErrInvalidMessage)

	require.NoError(t, group[1].Close())
	require.NoError(t, group[1].Close())
	err = group[0].Send(ctx, 1, cluster.Message{Tag: cluster.TagAnnounce})
	assert.ErrorIs(t, err, ErrClosed)

	require.NoError(t, group[0].Close())
	err = group[0].Send(ctx, 0, cluster.Message{Tag: cluster.TagAnnounce})
	assert.ErrorIs(t, err, ErrClosed)
}

// TestMemorySendBlockedCancelled verifies a full inbox honours ctx.
func TestMemorySendBlockedCancelled(t *testing.T) {
	group, err := NewMemoryGroup(1)
	require.NoError(t, err)

	msg := cluster.Message{Tag: cluster.TagAnnounce}
	require.NoError(t, group[0].Send(context.Background(), 0, msg))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = group[0].Send(ctx, 0, msg)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestNewMemoryGroupInvalid rejects empty groups.
func TestNewMemoryGroupInvalid(t *testing.T) {
	_, err := NewMemoryGroup(0)
	assert.Error(t, err)
}
