//go:build wireinject
// +build wireinject

package di

import (
	"QuoteForge/pkg/config"
	"QuoteForge/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Control plane
		ProvideControlCenter,

		// Infrastructure clients
		ProvideRedisCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideConfigStore,
		ProvideTickStore,
		ProvideAuditLog,
		ProvideActivityLog,
		ProvideRetryQueue,

		// Distribution
		ProvideStreamHub,
		ProvideBroadcaster,
		ProvideBroadcastPipeline,

		// Money
		ProvideBalanceLedger,

		// Engine
		ProvidePriceGenerator,
		ProvideSessionScheduler,
		ProvideRiskEngine,
		ProvideMarketEngine,
		ProvidePayoutJob,

		// Feed side
		ProvideRealFeed,
		ProvideFeedCollector,
		ProvideKafkaQuotesConsumer,
		ProvideKafkaQuotesHandler,

		// Application
		ProvideApp,
	)
	return &server.App{}, nil
}
