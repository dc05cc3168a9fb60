// Package eventbus optionally fans out EpisodicEvents to a Redis pub/sub
// channel for an external dashboard to tail. Unconfigured, it is a no-op.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Jasonmellet/AGT-jcore-ai-agent/pkg/store"
	"github.com/redis/go-redis/v9"
)

const defaultChannel = "agentnode:episodic_events"

// Publisher publishes EpisodicEvents. A nil *Publisher is valid and
// Publish becomes a no-op, matching the Episodic Recorder's degrade-to
// local-only behavior when REDIS_URL is unset.
type Publisher struct {
	client  *redis.Client
	channel string
}

// New connects to redisURL (a redis:// or rediss:// connection string). A
// channel override is accepted for tests; production callers should pass
// "" to use the default channel.
func New(redisURL, channel string) (*Publisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: parsing REDIS_URL: %w", err)
	}
	if channel == "" {
		channel = defaultChannel
	}
	return &Publisher{client: redis.NewClient(opts), channel: channel}, nil
}

// Publish serializes event as JSON and publishes it. A nil Publisher
// silently does nothing.
func (p *Publisher) Publish(ctx context.Context, event store.EpisodicEvent) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("eventbus: marshaling event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("eventbus: publishing: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client. Safe to call on a nil
// Publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
