//go:build wireinject
// +build wireinject

package di

import (
	"github.com/gonghuaze999-design/QuantAgrify/pkg/config"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Backend factories and the credential manager
		ProvideWarehouseFactory,
		ProvideOracleFactory,
		ProvideConnectionManager,

		// Data sources
		ProvideLiveFeed,

		// Backfill pipeline
		ProvideKafkaProducer,
		ProvideBackfillPublisher,
		ProvideKafkaConsumer,
		ProvideBackfillHandler,
		ProvideBackfillProcessor,

		// Use cases
		ProvideSeriesCache,
		ProvideSeriesOrchestrator,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
