package middleware

import (
	"context"
	"sync"
	"time"

	"QuoteForge/internal/domain/models"
	domrepo "QuoteForge/internal/domain/repository"
)

type broadcastItem struct {
	tick  *models.PriceTick
	event *models.UserEvent
}

// BroadcastPipeline decouples the tick loop from distribution. Publishing
// never blocks: a full buffer drops the item and counts it, and a failed
// broadcast is counted and forgotten.
type BroadcastPipeline struct {
	sink    domrepo.Broadcaster
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan broadcastItem
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
}

type PipelineOption func(*BroadcastPipeline)

// WithBufferSize sets the in-flight buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *BroadcastPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewBroadcastPipeline creates a pipeline in front of the given broadcaster.
func NewBroadcastPipeline(sink domrepo.Broadcaster, metrics domrepo.Metrics, opts ...PipelineOption) *BroadcastPipeline {
	p := &BroadcastPipeline{
		sink:    sink,
		metrics: metrics,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan broadcastItem, p.bufSize)
	return p
}

// Start launches the background delivery worker.
func (p *BroadcastPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-p.stopCh:
				return
			case item := <-p.bufCh:
				p.deliver(ctx, item)
			}
		}
	}()
}

// Stop stops the delivery worker; buffered items are abandoned.
func (p *BroadcastPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// PublishTick queues a tick for broadcast, dropping it if the buffer is full.
func (p *BroadcastPipeline) PublishTick(tick *models.PriceTick) {
	if tick == nil {
		return
	}
	select {
	case p.bufCh <- broadcastItem{tick: tick}:
	default:
		if p.metrics != nil {
			p.metrics.RecordError("broadcast_buffer_drop")
		}
	}
}

// PublishEvent queues a user event, dropping it if the buffer is full.
func (p *BroadcastPipeline) PublishEvent(event *models.UserEvent) {
	if event == nil {
		return
	}
	select {
	case p.bufCh <- broadcastItem{event: event}:
	default:
		if p.metrics != nil {
			p.metrics.RecordError("broadcast_buffer_drop")
		}
	}
}

func (p *BroadcastPipeline) deliver(ctx context.Context, item broadcastItem) {
	dctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var err error
	switch {
	case item.tick != nil:
		err = p.sink.BroadcastTick(dctx, item.tick)
	case item.event != nil:
		err = p.sink.BroadcastEvent(dctx, item.event)
	}
	if err != nil && p.metrics != nil {
		p.metrics.RecordError("broadcast_deliver")
	}
}
