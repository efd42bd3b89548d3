package usecase

import (
	"context"
	"encoding/json"
	"time"

	domrepo "QuoteForge/internal/domain/repository"
	pkgkafka "QuoteForge/pkg/kafka"
)

// KafkaQuotesHandler consumes real-market quotes from a Kafka topic and feeds
// them into the engine. Alternative to the websocket feed adapter.
type KafkaQuotesHandler struct {
	topic   string
	engine  *MarketEngine
	metrics domrepo.Metrics
}

func NewKafkaQuotesHandler(topic string, engine *MarketEngine, metrics domrepo.Metrics) *KafkaQuotesHandler {
	return &KafkaQuotesHandler{topic: topic, engine: engine, metrics: metrics}
}

func (h *KafkaQuotesHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, p}
func (h *KafkaQuotesHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		P      float64 `json:"p"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("consumer_unmarshal")
		}
		return err
	}
	if m.T > 1e11 { // ms
		m.T = m.T / 1000
	}
	at := time.Unix(m.T, 0)
	if m.T == 0 {
		at = time.Now()
	}
	if h.metrics != nil {
		h.metrics.RecordLatency("quote_ingest_seconds", time.Since(at).Seconds())
	}
	h.engine.UpdateRealPrice(m.Symbol, m.P, at)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaQuotesHandler)(nil)
