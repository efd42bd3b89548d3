package usecase

import (
	"context"

	"QuoteForge/internal/domain/models"
	drepo "QuoteForge/internal/domain/repository"
)

// FeedCollector consumes real-market quotes from a feed adapter and pushes
// them into the engine. A dead feed is tolerated: the engine keeps quoting
// synthetically and the collector keeps trying to reconnect.
type FeedCollector struct {
	feed    drepo.RealFeed
	engine  *MarketEngine
	metrics drepo.Metrics
}

// NewFeedCollector creates a collector for the given feed.
func NewFeedCollector(feed drepo.RealFeed, engine *MarketEngine, metrics drepo.Metrics) *FeedCollector {
	return &FeedCollector{feed: feed, engine: engine, metrics: metrics}
}

// IsConnected reports the feed connection state.
func (c *FeedCollector) IsConnected() bool {
	return c.feed.IsConnected()
}

// Start connects, subscribes and launches the consume loop.
func (c *FeedCollector) Start(ctx context.Context) error {
	if err := c.feed.Connect(ctx); err != nil {
		return err
	}
	if err := c.feed.Subscribe(ctx); err != nil {
		return err
	}
	qCh, errCh := c.feed.Read(ctx)
	go c.consume(ctx, qCh, errCh)
	return nil
}

func (c *FeedCollector) consume(ctx context.Context, qCh <-chan *models.RealQuote, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				if c.metrics != nil {
					c.metrics.RecordError("feed")
				}
				_ = c.feed.Reconnect(ctx)
			}
		case q := <-qCh:
			if q == nil {
				continue
			}
			c.engine.UpdateRealPrice(q.Symbol, q.Price, q.At)
		}
	}
}

// Stop closes the feed.
func (c *FeedCollector) Stop() error { return c.feed.Close() }
