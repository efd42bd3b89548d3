package di

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"QuoteForge/internal/domain/repository"
	mid "QuoteForge/internal/middleware"
	internalrepo "QuoteForge/internal/repository"
	"QuoteForge/internal/service/control"
	"QuoteForge/internal/service/feed"
	"QuoteForge/internal/service/ledger"
	"QuoteForge/internal/service/stream"
	"QuoteForge/internal/usecase"
	"QuoteForge/pkg/cache"
	pkgch "QuoteForge/pkg/clickhouse"
	"QuoteForge/pkg/config"
	pkgkafka "QuoteForge/pkg/kafka"
	"QuoteForge/pkg/logger"
	"QuoteForge/pkg/metrics"
	"QuoteForge/pkg/queue"

	segkafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideControlCenter creates the manual control center.
func ProvideControlCenter() *control.Center {
	return control.NewCenter()
}

// ProvidePriceGenerator creates the synthetic price generator.
func ProvidePriceGenerator(ctl *control.Center) *usecase.PriceGenerator {
	return usecase.NewPriceGenerator(ctl)
}

// ProvideSessionScheduler creates the session scheduler.
func ProvideSessionScheduler(cfg *config.Config) *usecase.SessionScheduler {
	return usecase.NewSessionScheduler(cfg.Engine.AnchorWindow, cfg.Engine.FeedStaleAfter)
}

// ProvideRedisCache connects to Redis when enabled; returns nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	host, port := splitAddr(cfg.Redis.Addr)
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(host),
		cache.WithRedisPort(port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.KeyPrefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

func splitAddr(addr string) (string, int) {
	host, portStr, ok := strings.Cut(addr, ":")
	if !ok {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}

// ProvideConfigStore builds the config store over a layered cache; nil when
// Redis is disabled (the engine then runs from file config only).
func ProvideConfigStore(rc *cache.RedisCache) repository.ConfigStore {
	if rc == nil {
		return nil
	}
	return internalrepo.NewRedisConfigStore(cache.NewLayeredCache(rc))
}

// ProvideClickHouseClient creates the tick history backend when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	table := cfg.ClickHouse.Database + ".price_ticks"
	if err := client.InitSchema(ctx, internalrepo.TickHistorySchema(table)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideTickStore creates the tick history store; nil when disabled.
func ProvideTickStore(chClient *pkgch.Client, cfg *config.Config) repository.TickStore {
	if chClient == nil {
		return nil
	}
	return internalrepo.NewClickHouseTickStore(chClient.DB(), cfg.ClickHouse.Database+".price_ticks")
}

// ProvideKafkaProducer creates the Kafka producer when enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideAuditLog creates the intervention audit log.
func ProvideAuditLog(producer *pkgkafka.Producer, cfg *config.Config) *internalrepo.AuditLog {
	return internalrepo.NewAuditLog(producer, cfg.Kafka.Topics.Audit)
}

// ProvideActivityLog adapts the audit log to the domain interface.
func ProvideActivityLog(audit *internalrepo.AuditLog) repository.ActivityLog {
	return audit
}

// ProvideStreamHub creates the websocket subscriber hub.
func ProvideStreamHub(m repository.Metrics, log *logger.Logger) *stream.Hub {
	return stream.NewHub(m, log)
}

// ProvideBroadcaster combines the websocket hub and, when enabled, Kafka.
func ProvideBroadcaster(hub *stream.Hub, producer *pkgkafka.Producer, cfg *config.Config) repository.Broadcaster {
	if producer == nil {
		return hub
	}
	kb := internalrepo.NewKafkaBroadcaster(producer, cfg.Kafka.Topics.Ticks, cfg.Kafka.Topics.Events)
	return internalrepo.NewCompositeBroadcaster(hub, kb)
}

// ProvideBroadcastPipeline buffers broadcasts off the tick loop.
func ProvideBroadcastPipeline(b repository.Broadcaster, m repository.Metrics) *mid.BroadcastPipeline {
	return mid.NewBroadcastPipeline(b, m, mid.WithBufferSize(2000))
}

// ProvideBalanceLedger selects the ledger backend.
func ProvideBalanceLedger(cfg *config.Config) repository.BalanceLedger {
	if cfg.Ledger.Backend == "http" && cfg.Ledger.BaseURL != "" {
		return ledger.NewHTTPLedger(cfg.Ledger.BaseURL, cfg.Ledger.Timeout)
	}
	return ledger.NewMemoryLedger(decimal.NewFromInt(10000))
}

// ProvideRetryQueue creates the Redis-backed settlement retry queue; nil when
// Redis is disabled (payout failures then go straight to reconciliation).
func ProvideRetryQueue(rc *cache.RedisCache, cfg *config.Config, log *logger.Logger) *queue.RedisQueue {
	if rc == nil {
		return nil
	}
	return queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.RetryQueue.Workers,
		RetryLimit: cfg.RetryQueue.RetryLimit,
		RetryDelay: cfg.RetryQueue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.KeyPrefix+":settlement"))
}

// ProvideRiskEngine creates the risk engine.
func ProvideRiskEngine(ctl *control.Center, audit repository.ActivityLog, m repository.Metrics, log *logger.Logger) *usecase.RiskEngine {
	return usecase.NewRiskEngine(ctl, audit, m, log)
}

// ProvideMarketEngine assembles the engine.
func ProvideMarketEngine(
	cfg *config.Config,
	gen *usecase.PriceGenerator,
	sessions *usecase.SessionScheduler,
	risk *usecase.RiskEngine,
	ctl *control.Center,
	store repository.ConfigStore,
	ticks repository.TickStore,
	bl repository.BalanceLedger,
	audit repository.ActivityLog,
	rq *queue.RedisQueue,
	pipe *mid.BroadcastPipeline,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.MarketEngine {
	var retry repository.RetryQueue
	if rq != nil {
		retry = rq
	}
	return usecase.NewMarketEngine(cfg, gen, sessions, risk, ctl, store, ticks, bl, audit, retry, pipe, m, log)
}

// ProvideRealFeed creates the websocket feed when configured; nil otherwise.
func ProvideRealFeed(cfg *config.Config) repository.RealFeed {
	if cfg.Feed.Source != "websocket" || cfg.Feed.URL == "" {
		return nil
	}
	symbols := make([]string, 0, len(cfg.Symbols))
	for _, sc := range cfg.Symbols {
		symbols = append(symbols, sc.Symbol)
	}
	return feed.New(cfg.Feed.APIKey, cfg.Feed.URL, symbols, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval)
}

// ProvideFeedCollector wraps the feed; nil when no feed is configured.
func ProvideFeedCollector(f repository.RealFeed, engine *usecase.MarketEngine, m repository.Metrics) *usecase.FeedCollector {
	if f == nil {
		return nil
	}
	return usecase.NewFeedCollector(f, engine, m)
}

// ProvideKafkaQuotesConsumer creates the consumer for the real-price topic
// when the feed source is kafka; nil otherwise.
func ProvideKafkaQuotesConsumer(cfg *config.Config, m repository.Metrics, log *logger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Feed.Source != "kafka" || !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(consumeMetricsHook(m))
	return consumer, nil
}

// consumeMetricsHook reports per-message consume latency and failures and
// threads the trace id from message headers into the handler context.
func consumeMetricsHook(m repository.Metrics) pkgkafka.ConsumerHook {
	return pkgkafka.HookFuncs{
		Before: func(ctx context.Context, topic string, km segkafka.Message, data []byte) (context.Context, segkafka.Message, []byte, error) {
			ctx = pkgkafka.WithStartTime(ctx, time.Now())
			ctx = pkgkafka.WithTraceID(ctx, pkgkafka.ExtractTraceID(km))
			return ctx, km, data, nil
		},
		After: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			if start, ok := pkgkafka.StartTime(ctx); ok {
				m.RecordLatency("kafka_consume", time.Since(start).Seconds())
			}
		},
		Err: func(ctx context.Context, topic string, km segkafka.Message, data []byte, err error) {
			m.RecordError("kafka_consume")
		},
	}
}

// ProvideKafkaQuotesHandler binds the real-price topic to the engine.
func ProvideKafkaQuotesHandler(engine *usecase.MarketEngine, m repository.Metrics, cfg *config.Config) *usecase.KafkaQuotesHandler {
	return usecase.NewKafkaQuotesHandler(cfg.Kafka.Topics.RealPrices, engine, m)
}

// ProvidePayoutJob creates the deferred payout replayer.
func ProvidePayoutJob(engine *usecase.MarketEngine, log *logger.Logger) *usecase.PayoutJob {
	return usecase.NewPayoutJob(engine, log)
}
