package executor

import (
	"net"

	"github.com/pkg/errors"
	"k8s.io/utils/clock"

	"github.com/armadaproject/elasticsched/internal/common/app"
	"github.com/armadaproject/elasticsched/internal/executor/configuration"
	"github.com/armadaproject/elasticsched/internal/scheduler/profiling"
)

// Run serves the scheduler's control connection with simulated workers until SIGTERM is received.
func Run(config configuration.ExecutorConfiguration) error {
	ctx := app.CreateContextWithShutdown()

	registry, shutdownMetrics := app.SetupMetrics(config.Metrics.Port)
	defer shutdownMetrics()

	store, err := profiling.NewStore(config.ProfileStore)
	if err != nil {
		return err
	}
	runner := NewSimulatedRunner(config.Simulation, clock.RealClock{})
	server := NewServer(config, store, runner, NewMetrics(registry))

	listener, err := net.Listen("tcp", config.ListenAddress)
	if err != nil {
		return errors.WithStack(err)
	}
	ctx.Log.Infof("listening for the scheduler on %s", listener.Addr())
	return server.Serve(ctx, listener)
}
