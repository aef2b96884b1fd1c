// Package eventbus implements the pipeline event bus on Redis Streams.
//
// A topic maps to a fixed set of partition streams. The publisher picks the
// partition by hashing the message key, so all events for one document land
// on the same stream and are consumed in order. Consumer groups give
// at-least-once delivery; handler failures are acknowledged anyway and a
// processing_failed envelope carrying the original message is emitted on the
// topic's dead-letter stream so a poison message can never wedge a partition.
package eventbus

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/logger"
)

var Module = fx.Module("eventbus",
	fx.Provide(
		NewRedisClient,
		NewBus,
		NewConsumer,
	),
)

const (
	streamPrefix  = "quarry"
	envelopeField = "envelope"
	keyField      = "key"
)

// NewRedisClient creates the shared Redis client with an fx lifecycle hook.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("ping redis: %w", err)
			}
			log.With(logger.Scope("redis")).Info("redis connected", slog.String("addr", cfg.Redis.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}

// Bus publishes envelopes onto partitioned topic streams.
type Bus struct {
	rdb        *redis.Client
	partitions int
	source     string
	rr         atomic.Uint64
	log        *slog.Logger
}

// NewBus creates a publisher bound to the configured partition count.
func NewBus(rdb *redis.Client, cfg *config.Config, log *slog.Logger) *Bus {
	return &Bus{
		rdb:        rdb,
		partitions: cfg.Redis.Partitions,
		source:     "quarry-server",
		log:        log.With(logger.Scope("eventbus")),
	}
}

// StreamName returns the partition stream for a topic.
func StreamName(topic string, partition int) string {
	return fmt.Sprintf("%s:%s:%d", streamPrefix, topic, partition)
}

// DeadLetterStream returns the dead-letter stream for a topic.
func DeadLetterStream(topic string) string {
	return fmt.Sprintf("%s:%s.dlq", streamPrefix, topic)
}

// Partition maps a key to a partition index. Keyless messages rotate
// round-robin and carry no ordering guarantee.
func (b *Bus) Partition(key string) int {
	if key == "" {
		return int(b.rr.Add(1) % uint64(b.partitions))
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(b.partitions))
}

// Publish wraps data in the standard envelope and appends it to the topic
// partition selected by key.
func (b *Bus) Publish(ctx context.Context, topic, key string, data any) error {
	env, err := NewEnvelope(topic, b.source, data)
	if err != nil {
		return err
	}
	return b.publishEnvelope(ctx, topic, key, env)
}

func (b *Bus) publishEnvelope(ctx context.Context, topic, key string, env *Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return err
	}

	stream := StreamName(topic, b.Partition(key))
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{envelopeField: raw, keyField: key},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.log.Debug("published event",
		slog.String("topic", topic),
		slog.String("key", key),
		slog.String("stream", stream),
	)
	return nil
}

// publishDeadLetter emits a processing_failed envelope onto the topic's
// dead-letter stream, carrying the failed envelope and the handler error.
func (b *Bus) publishDeadLetter(ctx context.Context, topic string, env *Envelope, handlerErr error) error {
	dead, err := newDeadLetterEnvelope(topic, b.source, env, handlerErr)
	if err != nil {
		return err
	}
	raw, err := dead.Encode()
	if err != nil {
		return err
	}
	return b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream(topic),
		Values: map[string]any{envelopeField: raw},
	}).Err()
}
