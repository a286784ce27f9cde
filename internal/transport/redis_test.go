//go:build integration

package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/dreamware/keysweep/internal/cluster"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// TestRedisDelivery verifies mailbox delivery between peers of one run,
// including messages pushed before the receiver starts.
func TestRedisDelivery(t *testing.T) {
	client := newRedisClient(t)
	runID := uuid.NewString()
	ctx := context.Background()

	sender, err := NewRedis(client, runID, "launch-1", 1, 2, WithPopTimeout(100*time.Millisecond))
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Send(ctx, 0, cluster.Message{Tag: cluster.TagAnnounce, From: 1, Key: 1234, Thread: 3}))

	receiver, err := NewRedis(client, runID, "launch-1", 0, 2, WithPopTimeout(100*time.Millisecond))
	require.NoError(t, err)
	defer receiver.Close()

	got := recv(t, receiver.Receive(cluster.TagAnnounce))
	assert.Equal(t, uint64(1234), got.Key)
	assert.Equal(t, 3, got.Thread)
	assert.Equal(t, runID, got.RunID)

	require.NoError(t, sender.Send(ctx, 0, cluster.Message{Tag: cluster.TagExhausted, From: 1, KeysTested: 8}))
	assert.Equal(t, uint64(8), recv(t, receiver.Receive(cluster.TagExhausted)).KeysTested)

	ttl, err := client.TTL(ctx, MailboxKey(runID, "launch-1", 0, cluster.TagExhausted)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

// TestRedisRunIsolation verifies two runs never see each other's mail.
func TestRedisRunIsolation(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	a, err := NewRedis(client, "run-a", "l", 0, 1, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedis(client, "run-b", "l", 0, 1, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(ctx, 0, cluster.Message{Tag: cluster.TagAnnounce, Key: 1}))
	assert.Equal(t, uint64(1), recv(t, a.Receive(cluster.TagAnnounce)).Key)

	select {
	case m := <-b.Receive(cluster.TagAnnounce):
		t.Fatalf("run-b received %+v", m)
	case <-time.After(200 * time.Millisecond):
	}
}

// TestRedisClose verifies Close stops the loops and later sends fail.
func TestRedisClose(t *testing.T) {
	client := newRedisClient(t)

	r, err := NewRedis(client, "run-c", "l", 0, 1, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	err = r.Send(context.Background(), 0, cluster.Message{Tag: cluster.TagAnnounce})
	assert.ErrorIs(t, err, ErrClosed)
}

// TestRedisLaunchIsolation verifies mail left for a peer that exited is not
// read by the next launch of the same run.
func TestRedisLaunchIsolation(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	first, err := NewRedis(client, "demo", "launch-1", 0, 2, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, first.Send(ctx, 1, cluster.Message{Tag: cluster.TagAnnounce, From: 0, Key: 50}))
	require.NoError(t, first.Close())

	n, err := client.Exists(ctx, MailboxKey("demo", "launch-1", 1, cluster.TagAnnounce)).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "peer 1 never read its mail")

	second, err := NewRedis(client, "demo", "launch-2", 1, 2, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer second.Close()

	select {
	case m := <-second.Receive(cluster.TagAnnounce):
		t.Fatalf("launch-2 received %+v", m)
	case <-time.After(300 * time.Millisecond):
	}
}

// TestRedisCloseDeletesMailboxes verifies mail still queued for a peer is
// removed when it closes.
func TestRedisCloseDeletesMailboxes(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	sender, err := NewRedis(client, "run-d", "l", 0, 2, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer sender.Close()
	receiver, err := NewRedis(client, "run-d", "l", 1, 2, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)

	// The inbox holds two messages and the loop holds a third; the rest
	// stay in Redis.
	for i := 0; i < 5; i++ {
		require.NoError(t, sender.Send(ctx, 1, cluster.Message{Tag: cluster.TagAnnounce, From: 0, Key: uint64(i)}))
	}
	key := MailboxKey("run-d", "l", 1, cluster.TagAnnounce)
	require.Eventually(t, func() bool {
		n, err := client.LLen(ctx, key).Result()
		return err == nil && n == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, receiver.Close())
	n, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// TestRedisDropsForeignRun verifies a message stamped with another run id
// is not delivered.
func TestRedisDropsForeignRun(t *testing.T) {
	client := newRedisClient(t)
	ctx := context.Background()

	r, err := NewRedis(client, "run-e", "l", 0, 1, WithPopTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer r.Close()

	payload, err := json.Marshal(cluster.Message{Tag: cluster.TagAnnounce, RunID: "other", Key: 4})
	require.NoError(t, err)
	require.NoError(t, client.RPush(ctx, MailboxKey("run-e", "l", 0, cluster.TagAnnounce), payload).Err())

	select {
	case m := <-r.Receive(cluster.TagAnnounce):
		t.Fatalf("received %+v", m)
	case <-time.After(300 * time.Millisecond):
	}
}
