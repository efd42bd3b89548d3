package middleware

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"QuoteForge/internal/domain/models"
)

type captureSink struct {
	ticks  chan *models.PriceTick
	events chan *models.UserEvent
}

func newCaptureSink() *captureSink {
	return &captureSink{
		ticks:  make(chan *models.PriceTick, 16),
		events: make(chan *models.UserEvent, 16),
	}
}

func (s *captureSink) BroadcastTick(_ context.Context, tick *models.PriceTick) error {
	s.ticks <- tick
	return nil
}

func (s *captureSink) BroadcastEvent(_ context.Context, event *models.UserEvent) error {
	s.events <- event
	return nil
}

func (s *captureSink) Close() error { return nil }

type countingMetrics struct {
	errors int64
}

func (m *countingMetrics) RecordTick(string, string)         {}
func (m *countingMetrics) RecordLastPrice(string, float64)   {}
func (m *countingMetrics) RecordExposure(string, float64)    {}
func (m *countingMetrics) RecordIntervention(string, string) {}
func (m *countingMetrics) RecordSettlement(string, string)   {}
func (m *countingMetrics) RecordError(string)                { atomic.AddInt64(&m.errors, 1) }
func (m *countingMetrics) RecordLatency(string, float64)     {}

func TestPipelineDeliversTicksAndEvents(t *testing.T) {
	sink := newCaptureSink()
	p := NewBroadcastPipeline(sink, nil, WithBufferSize(8))
	p.Start(context.Background())
	defer p.Stop()

	p.PublishTick(&models.PriceTick{Symbol: "EURUSD-OTC", Price: 1.085})
	p.PublishEvent(&models.UserEvent{ID: "e1", UserID: "u1", Type: models.EventTradePlaced})

	select {
	case tick := <-sink.ticks:
		if tick.Symbol != "EURUSD-OTC" {
			t.Fatalf("unexpected tick %+v", tick)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("tick never delivered")
	}
	select {
	case ev := <-sink.events:
		if ev.UserID != "u1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event never delivered")
	}
}

func TestPipelineDropsWhenFull(t *testing.T) {
	m := &countingMetrics{}
	p := NewBroadcastPipeline(newCaptureSink(), m, WithBufferSize(1))
	// Worker not started: the second publish finds the buffer full.
	p.PublishTick(&models.PriceTick{Symbol: "A"})
	p.PublishTick(&models.PriceTick{Symbol: "B"})

	if got := atomic.LoadInt64(&m.errors); got != 1 {
		t.Fatalf("drop count = %d, want 1", got)
	}
}

func TestPipelineIgnoresNil(t *testing.T) {
	m := &countingMetrics{}
	p := NewBroadcastPipeline(newCaptureSink(), m, WithBufferSize(1))
	p.PublishTick(nil)
	p.PublishEvent(nil)
	if got := atomic.LoadInt64(&m.errors); got != 0 {
		t.Fatalf("nil publishes must be no-ops, drops=%d", got)
	}
}

func TestPipelineStopIsIdempotent(t *testing.T) {
	p := NewBroadcastPipeline(newCaptureSink(), nil)
	p.Start(context.Background())
	p.Stop()
	p.Stop()
}
