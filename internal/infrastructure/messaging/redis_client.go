package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// GoRedisClient adapts a go-redis client to RedisClient.
type GoRedisClient struct {
	client redis.UniversalClient

	mu     sync.Mutex
	pubsub []*redis.PubSub
}

// NewGoRedisClient wraps client. Closing the adapter closes its
// subscriptions, not the client.
func NewGoRedisClient(client redis.UniversalClient) *GoRedisClient {
	return &GoRedisClient{client: client}
}

// Publish implements RedisClient. Strings and byte slices are sent as is.
func (c *GoRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if err := c.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements RedisClient. The returned channel is closed when ctx
// is done or the subscription is closed.
func (c *GoRedisClient) Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error) {
	ps := c.client.Subscribe(ctx, channels...)

	// wait for the subscription confirmation so publishes right after
	// Subscribe returns are not lost
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	c.mu.Lock()
	c.pubsub = append(c.pubsub, ps)
	c.mu.Unlock()

	out := make(chan RedisMessage)
	go func() {
		defer close(out)
		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- RedisMessage{Channel: msg.Channel, Payload: msg.Payload}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close implements RedisClient.
func (c *GoRedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for _, ps := range c.pubsub {
		if err := ps.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.pubsub = nil
	return errors.Join(errs...)
}
