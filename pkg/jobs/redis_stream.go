package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const payloadField = "payload"

// Submitter accepts jobs for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// StreamPublisher appends JSON payloads to a Redis stream.
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamPublisher builds a publisher for the given stream. maxLen <= 0 keeps the stream untrimmed.
func NewStreamPublisher(client redis.Cmdable, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Publish appends the payload and returns the stream entry id.
func (p *StreamPublisher) Publish(ctx context.Context, payload []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{payloadField: string(payload)},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

// StreamConsumerConfig configures a consumer group reader.
type StreamConsumerConfig struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
	Backoff  time.Duration
	Logger   *zap.Logger
}

// StreamConsumer reads a stream through a consumer group and hands entries to a Submitter.
// Entries are acknowledged as soon as the submitter accepts them.
type StreamConsumer struct {
	client redis.Cmdable
	cfg    StreamConsumerConfig
	logger *zap.Logger
}

// NewStreamConsumer builds a consumer.
func NewStreamConsumer(client redis.Cmdable, cfg StreamConsumerConfig) *StreamConsumer {
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &StreamConsumer{client: client, cfg: cfg, logger: cfg.Logger}
}

// EnsureGroup creates the stream and consumer group when missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", c.cfg.Group, err)
	}
	return nil
}

// Run polls the stream until ctx is cancelled.
func (c *StreamConsumer) Run(ctx context.Context, sink Submitter) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Sugar().Infow("stream consumer started", "stream", c.cfg.Stream, "group", c.cfg.Group, "consumer", c.cfg.Consumer)

	if err := c.drainPending(ctx, sink); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.Count,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Sugar().Warnw("stream read failed", "stream", c.cfg.Stream, "error", err)
			if !sleep(ctx, c.cfg.Backoff) {
				return nil
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if err := c.dispatch(ctx, sink, msg); err != nil {
					return err
				}
			}
		}
	}
}

// drainPending re-dispatches entries delivered to this consumer but never acknowledged,
// such as a hand-off interrupted by shutdown.
func (c *StreamConsumer) drainPending(ctx context.Context, sink Submitter) error {
	start := "0"
	for {
		if ctx.Err() != nil {
			return nil
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Consumer,
			Streams:  []string{c.cfg.Stream, start},
			Count:    c.cfg.Count,
			Block:    -1,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read pending entries of %s: %w", c.cfg.Stream, err)
		}

		read := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				read++
				start = msg.ID
				c.logger.Sugar().Infow("redelivering pending stream entry", "stream", c.cfg.Stream, "id", msg.ID)
				if err := c.dispatch(ctx, sink, msg); err != nil {
					return err
				}
			}
		}
		if read == 0 {
			return nil
		}
	}
}

func (c *StreamConsumer) dispatch(ctx context.Context, sink Submitter, msg redis.XMessage) error {
	payload, _ := msg.Values[payloadField].(string)
	job := Job{ID: msg.ID, Type: c.cfg.Stream, Payload: []byte(payload)}

	if err := sink.Submit(ctx, job); err != nil {
		if ctx.Err() != nil {
			// Left pending; drainPending picks it up on the next Run.
			return nil
		}
		return fmt.Errorf("submit stream entry %s: %w", msg.ID, err)
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Sugar().Warnw("stream ack failed", "stream", c.cfg.Stream, "id", msg.ID, "error", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
