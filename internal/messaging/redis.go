package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisOptions holds the connection settings for RedisBroker
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisBroker publishes through Redis so pages served by other processes
// receive the same messages
type RedisBroker struct {
	client      *redis.Client
	revokeAfter time.Duration
	log         logrus.FieldLogger
}

// NewRedisBroker connects to Redis and verifies the connection
func NewRedisBroker(ctx context.Context, opts RedisOptions, revokeAfter time.Duration, log logrus.FieldLogger) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	log.WithField("addr", opts.Addr).Info("Redis broker connected")

	return &RedisBroker{
		client:      client,
		revokeAfter: revokeAfter,
		log:         log,
	}, nil
}

// latestKey is the key holding the not-yet-revoked payload of a channel
func latestKey(channel string) string {
	return "cabin:latest:" + channel
}

// Publish stores the payload with a TTL of revokeAfter and publishes it
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload interface{}) error {
	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", channel, err)
	}

	pipe := b.client.TxPipeline()
	pipe.Set(ctx, latestKey(channel), data, b.revokeAfter)
	pipe.Publish(ctx, channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Latest returns the stored payload of channel until its TTL expires
func (b *RedisBroker) Latest(ctx context.Context, channel string) ([]byte, bool, error) {
	data, err := b.client.Get(ctx, latestKey(channel)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read latest payload of %s: %w", channel, err)
	}
	return data, true, nil
}

// Subscribe relays Redis Pub/Sub messages until ctx is done
func (b *RedisBroker) Subscribe(ctx context.Context, channels ...string) (<-chan Delivery, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("subscribe requires at least one channel")
	}

	pubsub := b.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", channels, err)
	}

	out := make(chan Delivery, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- Delivery{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				default:
					b.log.WithField("channel", msg.Channel).Warn("Subscriber buffer full, dropping message")
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis client
func (b *RedisBroker) Close() error {
	return b.client.Close()
}
