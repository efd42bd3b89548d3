package di

import (
	internalrepo "QuoteForge/internal/repository"
	"QuoteForge/internal/service/control"
	"QuoteForge/internal/service/stream"
	"QuoteForge/internal/usecase"
	pkgch "QuoteForge/pkg/clickhouse"
	"QuoteForge/pkg/config"
	pkgkafka "QuoteForge/pkg/kafka"
	"QuoteForge/pkg/logger"
	"QuoteForge/pkg/queue"
	"QuoteForge/pkg/server"
)

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	engine *usecase.MarketEngine,
	ctl *control.Center,
	audit *internalrepo.AuditLog,
	hub *stream.Hub,
	collector *usecase.FeedCollector,
	consumer *pkgkafka.Consumer,
	qh *usecase.KafkaQuotesHandler,
	retryQ *queue.RedisQueue,
	payout *usecase.PayoutJob,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) *server.App {
	return server.New(cfg, log, engine, ctl, audit, hub, collector, consumer, qh, retryQ, payout, producer, chClient)
}
