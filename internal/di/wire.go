//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"CoinPulse/pkg/config"
	"CoinPulse/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application plus
// a cleanup that releases connections in reverse order.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideCache,

		// Providers
		ProvideBackoff,
		ProvideCoinGecko,
		ProvideCandles,
		ProvideStream,
		ProvideDexScreener,
		ProvideGateway,
		ProvideForecaster,

		// Storage and sinks
		ProvidePreferences,
		ProvideTickStorage,
		ProvideTickPublisher,
		ProvideTickProcessor,
		ProvidePipeline,

		// Use cases
		ProvideStreamManager,
		ProvidePoller,
		ProvidePairFeed,
		ProvideOrchestrator,

		// HTTP
		ProvideMarketHandler,
		ProvideHealthHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
