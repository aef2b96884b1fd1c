package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/quarry-ai/quarry/internal/config"
	"github.com/quarry-ai/quarry/pkg/logger"
)

// Handler processes one decoded envelope. A non-nil error sends the envelope
// to the topic's dead-letter stream; the message is acknowledged either way.
type Handler func(ctx context.Context, env *Envelope) error

const (
	leaseTTL          = 30 * time.Second
	leaseRenewEvery   = 10 * time.Second
	leaseRetryBackoff = 5 * time.Second
)

// Consumer reads partitioned topic streams within a consumer group.
//
// Each partition stream is leased to at most one consumer instance at a time
// so per-key ordering holds even when several server replicas run the same
// group. Stop drains in-flight handlers before returning.
type Consumer struct {
	rdb        *redis.Client
	bus        *Bus
	group      string
	name       string
	partitions int
	blockTime  time.Duration
	log        *slog.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewConsumer creates a consumer for the configured group. Handlers must be
// registered with Subscribe before Start.
func NewConsumer(rdb *redis.Client, bus *Bus, cfg *config.Config, log *slog.Logger) *Consumer {
	return &Consumer{
		rdb:        rdb,
		bus:        bus,
		group:      cfg.Redis.Group,
		name:       fmt.Sprintf("%s-%s", cfg.Redis.Group, uuid.NewString()[:8]),
		partitions: cfg.Redis.Partitions,
		blockTime:  cfg.Redis.BlockTime,
		log:        log.With(logger.Scope("eventbus.consumer")),
		handlers:   make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a topic. Multiple handlers per topic run
// sequentially in registration order.
func (c *Consumer) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = append(c.handlers[topic], h)
}

// Start creates consumer groups for every subscribed topic partition and
// begins the per-partition read loops.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.stopCh = make(chan struct{})
	topics := make([]string, 0, len(c.handlers))
	for t := range c.handlers {
		topics = append(topics, t)
	}
	c.mu.Unlock()

	for _, topic := range topics {
		for p := 0; p < c.partitions; p++ {
			stream := StreamName(topic, p)
			err := c.rdb.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
			if err != nil && !isBusyGroup(err) {
				return fmt.Errorf("create group on %s: %w", stream, err)
			}

			c.wg.Add(1)
			go c.runPartition(topic, stream)
		}
	}

	c.log.Info("consumer started",
		slog.String("group", c.group),
		slog.String("consumer", c.name),
		slog.Int("topics", len(topics)),
		slog.Int("partitions", c.partitions),
	)
	return nil
}

// Stop signals all partition loops to finish their in-flight messages and
// waits for them, bounded by ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("consumer stopped")
	case <-ctx.Done():
		c.log.Warn("consumer stop timeout")
	}
	return nil
}

// runPartition holds the partition lease and consumes the stream while it does.
func (c *Consumer) runPartition(topic, stream string) {
	defer c.wg.Done()

	leaseKey := fmt.Sprintf("%s:lease:%s:%s", streamPrefix, c.group, stream)
	ctx := context.Background()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		ok, err := c.rdb.SetNX(ctx, leaseKey, c.name, leaseTTL).Result()
		if err != nil {
			c.log.Warn("lease acquire failed", slog.String("stream", stream), logger.Error(err))
			c.sleep(leaseRetryBackoff)
			continue
		}
		if !ok {
			// Another replica owns this partition.
			c.sleep(leaseRetryBackoff)
			continue
		}

		c.consumeWhileLeased(ctx, topic, stream, leaseKey)
		c.rdb.Del(ctx, leaseKey)
	}
}

func (c *Consumer) consumeWhileLeased(ctx context.Context, topic, stream, leaseKey string) {
	lastRenew := time.Now()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if time.Since(lastRenew) >= leaseRenewEvery {
			if err := c.rdb.Expire(ctx, leaseKey, leaseTTL).Err(); err != nil {
				c.log.Warn("lease renew failed, releasing partition",
					slog.String("stream", stream), logger.Error(err))
				return
			}
			lastRenew = time.Now()
		}

		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{stream, ">"},
			Count:    16,
			Block:    c.blockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			c.log.Warn("read failed", slog.String("stream", stream), logger.Error(err))
			c.sleep(time.Second)
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				c.handleMessage(ctx, topic, stream, msg)
			}
		}
	}
}

// handleMessage dispatches one message. Commit-even-on-error: the ack always
// happens, failures go to the dead-letter stream instead of blocking the
// partition.
func (c *Consumer) handleMessage(ctx context.Context, topic, stream string, msg redis.XMessage) {
	defer c.rdb.XAck(ctx, stream, c.group, msg.ID)

	raw, ok := msg.Values[envelopeField].(string)
	if !ok {
		c.log.Warn("message without envelope", slog.String("stream", stream), slog.String("id", msg.ID))
		return
	}

	env, err := DecodeEnvelope([]byte(raw))
	if err != nil {
		c.log.Warn("undecodable envelope", slog.String("stream", stream), logger.Error(err))
		return
	}

	c.mu.Lock()
	handlers := c.handlers[topic]
	c.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, env); err != nil {
			c.log.Error("handler failed",
				slog.String("topic", topic),
				slog.String("event_type", env.EventType),
				logger.Error(err),
			)
			if dlqErr := c.bus.publishDeadLetter(ctx, topic, env, err); dlqErr != nil {
				c.log.Error("dead-letter publish failed", logger.Error(dlqErr))
			}
			return
		}
	}
}

func (c *Consumer) sleep(d time.Duration) {
	select {
	case <-c.stopCh:
	case <-time.After(d):
	}
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
