package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	jobs []Job
}

func (s *recordingSink) Submit(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *recordingSink) received() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Job(nil), s.jobs...)
}

// cancellingSink cancels the consumer context on the first hand-off, like a
// shutdown arriving while the pool buffer is full.
type cancellingSink struct {
	cancel context.CancelFunc
}

func (s *cancellingSink) Submit(ctx context.Context, job Job) error {
	s.cancel()
	return ctx.Err()
}

func newStreamClient(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestStreamRoundTripAcksOnHandOff(t *testing.T) {
	client := newStreamClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := NewStreamConsumer(client, StreamConsumerConfig{
		Stream:   "reports",
		Group:    "workers",
		Consumer: "w1",
		Block:    20 * time.Millisecond,
	})
	require.NoError(t, consumer.EnsureGroup(ctx))
	require.NoError(t, consumer.EnsureGroup(ctx), "existing group is tolerated")

	publisher := NewStreamPublisher(client, "reports", 0)
	id, err := publisher.Publish(ctx, []byte(`{"orgId":"org-1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx, sink) }()

	require.Eventually(t, func() bool { return len(sink.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	job := sink.received()[0]
	assert.Equal(t, id, job.ID)
	assert.Equal(t, "reports", job.Type)
	assert.JSONEq(t, `{"orgId":"org-1"}`, string(job.Payload))

	pending, err := client.XPending(context.Background(), "reports", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}

func TestStreamPublisherTrims(t *testing.T) {
	client := newStreamClient(t)
	publisher := NewStreamPublisher(client, "bounded", 2)
	for i := 0; i < 5; i++ {
		_, err := publisher.Publish(context.Background(), []byte("{}"))
		require.NoError(t, err)
	}
	length, err := client.XLen(context.Background(), "bounded").Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, length, int64(5))
	assert.Positive(t, length)
}

func TestStreamConsumerRedeliversPendingAfterRestart(t *testing.T) {
	client := newStreamClient(t)
	cfg := StreamConsumerConfig{
		Stream:   "reports",
		Group:    "workers",
		Consumer: "w1",
		Block:    20 * time.Millisecond,
	}

	publisher := NewStreamPublisher(client, "reports", 0)
	consumer := NewStreamConsumer(client, cfg)
	require.NoError(t, consumer.EnsureGroup(context.Background()))
	id, err := publisher.Publish(context.Background(), []byte(`{"batchId":"b-1"}`))
	require.NoError(t, err)

	firstCtx, firstCancel := context.WithCancel(context.Background())
	defer firstCancel()
	require.NoError(t, consumer.Run(firstCtx, &cancellingSink{cancel: firstCancel}))

	pending, err := client.XPending(context.Background(), "reports", "workers").Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, pending.Count)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &recordingSink{}
	done := make(chan error, 1)
	go func() { done <- NewStreamConsumer(client, cfg).Run(ctx, sink) }()

	require.Eventually(t, func() bool { return len(sink.received()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, id, sink.received()[0].ID)
	assert.JSONEq(t, `{"batchId":"b-1"}`, string(sink.received()[0].Payload))

	pending, err = client.XPending(context.Background(), "reports", "workers").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count)
}
