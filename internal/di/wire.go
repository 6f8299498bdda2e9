//go:build wireinject
// +build wireinject

package di

import (
	"FlockWatch/pkg/config"
	"FlockWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideWindowSupplier,
		ProvideAnomalyStore,
		ProvideAlertHub,
		ProvideAnomalyPublisher,
		ProvideResponseCache,

		// Detection core
		ProvideRegistry,
		ProvideEnsemble,
		ProvideDetectionUseCase,
		ProvideFeedbackUseCase,

		// HTTP surface
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
