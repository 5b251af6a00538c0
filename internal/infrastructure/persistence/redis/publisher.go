package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alem-hub/streakhub/internal/domain/shared"
	"github.com/alem-hub/streakhub/pkg/circuitbreaker"
)

// EventEnvelope is the wire form of a domain event on a Redis channel.
type EventEnvelope struct {
	Type        shared.EventType `json:"type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

// Envelope converts a domain event to its wire form.
func Envelope(event shared.Event) EventEnvelope {
	return EventEnvelope{
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
}

// Publisher implements shared.EventPublisher on Redis pub/sub.
// Each event type gets its own channel: <prefix>events:<type>.
// After repeated failures the breaker opens and events are dropped until
// Redis answers again.
type Publisher struct {
	cache   *Cache
	timeout time.Duration
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewPublisher creates a new Publisher.
func NewPublisher(cache *Cache, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		cache:   cache,
		timeout: 2 * time.Second,
		logger:  logger,
		breaker: circuitbreaker.ForRedis(func(name string, from, to circuitbreaker.State) {
			logger.Warn("event publisher circuit changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
	}
}

// Publish sends an event to its channel.
func (p *Publisher) Publish(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	channel := p.Channel(event.EventType())
	err := p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.cache.Publish(ctx, channel, Envelope(event))
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			return err
		}
		p.logger.Warn("failed to publish event",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
		return err
	}
	return nil
}

// Channel returns the channel name for an event type.
func (p *Publisher) Channel(t shared.EventType) string {
	return p.cache.Key(PrefixEvents, string(t))
}

// Pattern returns the subscription pattern matching every event channel.
func (p *Publisher) Pattern() string {
	return p.cache.Key(PrefixEvents, "*")
}
