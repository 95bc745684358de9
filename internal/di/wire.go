//go:build wireinject
// +build wireinject

package di

import (
	"Tehama/pkg/config"
	"Tehama/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,
		ProvidePipelineMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideRedisClient,

		// Repositories
		ProvideStorage,
		ProvidePublisher,
		ProvideCandleStore,

		// Market data
		ProvideQuoteStream,
		ProvidePriceBook,
		ProvideMarketClock,
		ProvideBytesCache,
		ProvideSnapshotProvider,

		// Decision pipeline
		ProvideAnalysts,
		ProvideAggregator,
		ProvideProposers,
		ProvideArbitrator,
		ProvideMediator,
		ProvideRecommender,
		ProvideHistory,

		// Transport and workers
		ProvideScanQueue,
		ProvideQuotePipeline,
		ProvideQuoteCollector,
		ProvideAPIHandler,
		ProvideOpsHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
