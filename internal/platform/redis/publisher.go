package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/phrazzld/scry-assess/internal/events"
)

const defaultEventChannel = "scry:events"

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// Publisher forwards domain events to a Redis pub/sub channel. It registers
// with events.InMemoryEventEmitter as a handler.
type Publisher struct {
	client  publishClient
	channel string
	logger  *slog.Logger
}

var _ events.EventHandler = (*Publisher)(nil)

// NewPublisher creates a Publisher on channel, defaulting to "scry:events".
func NewPublisher(client publishClient, channel string, logger *slog.Logger) *Publisher {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if channel == "" {
		channel = defaultEventChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:  client,
		channel: channel,
		logger:  logger.With(slog.String("component", "redis_publisher")),
	}
}

// HandleEvent implements events.EventHandler.
func (p *Publisher) HandleEvent(ctx context.Context, event *events.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	receivers, err := p.client.Publish(ctx, p.channel, raw).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	p.logger.Debug("event published",
		slog.String("event_type", event.Type),
		slog.Int64("receivers", receivers))
	return nil
}
