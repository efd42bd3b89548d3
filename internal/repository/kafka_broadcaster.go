package repository

import (
	"context"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/domain/repository"
	pkgkafka "QuoteForge/pkg/kafka"
)

// KafkaBroadcaster publishes ticks and user events to Kafka topics, keyed by
// symbol and user so consumers see per-key ordering.
type KafkaBroadcaster struct {
	producer    *pkgkafka.Producer
	ticksTopic  string
	eventsTopic string
}

// NewKafkaBroadcaster creates a broadcaster over the given producer.
func NewKafkaBroadcaster(producer *pkgkafka.Producer, ticksTopic, eventsTopic string) repository.Broadcaster {
	return &KafkaBroadcaster{
		producer:    producer,
		ticksTopic:  ticksTopic,
		eventsTopic: eventsTopic,
	}
}

func (b *KafkaBroadcaster) BroadcastTick(ctx context.Context, tick *models.PriceTick) error {
	return b.producer.Publish(ctx, b.ticksTopic, []byte(tick.Symbol), tick)
}

func (b *KafkaBroadcaster) BroadcastEvent(ctx context.Context, event *models.UserEvent) error {
	return b.producer.Publish(ctx, b.eventsTopic, []byte(event.UserID), event)
}

func (b *KafkaBroadcaster) Close() error {
	return b.producer.Close()
}

// CompositeBroadcaster fans out to several broadcasters; the first error is
// returned after every sink was attempted.
type CompositeBroadcaster struct {
	sinks []repository.Broadcaster
}

// NewCompositeBroadcaster combines broadcasters. Nil sinks are skipped.
func NewCompositeBroadcaster(sinks ...repository.Broadcaster) repository.Broadcaster {
	c := &CompositeBroadcaster{}
	for _, s := range sinks {
		if s != nil {
			c.sinks = append(c.sinks, s)
		}
	}
	return c
}

func (c *CompositeBroadcaster) BroadcastTick(ctx context.Context, tick *models.PriceTick) error {
	var first error
	for _, s := range c.sinks {
		if err := s.BroadcastTick(ctx, tick); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *CompositeBroadcaster) BroadcastEvent(ctx context.Context, event *models.UserEvent) error {
	var first error
	for _, s := range c.sinks {
		if err := s.BroadcastEvent(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *CompositeBroadcaster) Close() error {
	var first error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
