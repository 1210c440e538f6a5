package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/armadaproject/elasticsched/internal/common/logging"
	"github.com/armadaproject/elasticsched/internal/common/metrics"
	"github.com/armadaproject/elasticsched/internal/common/schedcontext"
)

// CreateContextWithShutdown returns a context that reports done once SIGINT or SIGTERM is received.
func CreateContextWithShutdown() *schedcontext.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-c:
			cancel()
		case <-ctx.Done():
		}
	}()
	return schedcontext.New(ctx, log.NewEntry(log.StandardLogger()))
}

// SetupMetrics returns a registry for the application's metrics. Log messages are counted by level. If
// port is non-zero the registry is served on it until the returned function is called.
func SetupMetrics(port uint16) (*prometheus.Registry, func()) {
	registry := prometheus.NewRegistry()
	log.AddHook(logging.NewPrometheusHook(registry))
	if port == 0 {
		return registry, func() {}
	}
	return registry, metrics.ServeMetrics(port, registry)
}
