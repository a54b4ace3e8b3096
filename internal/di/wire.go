//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinSignal/internal/repository"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/config"
	"FinSignal/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Stores
		ProvideProfileStore,
		wire.Bind(new(usecase.ProfileStore), new(*repository.YAMLProfileStore)),
		ProvideBackend,
		ProvideCache,
		ProvideCheckpointStore,
		ProvidePublisher,

		// Use cases
		ProvideRegimeResolver,
		ProvideEntityScorer,
		ProvidePipeline,
		ProvideBatchRecompute,
		ProvideTrendReporter,
		ProvideCalibrator,

		// Transport
		ProvideKafkaConsumer,
		ProvideRecomputeHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return nil, nil, nil
}
