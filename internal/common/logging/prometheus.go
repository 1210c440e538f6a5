package logging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PrometheusHook counts log lines by level.
type PrometheusHook struct {
	lines *prometheus.CounterVec
}

func NewPrometheusHook(registerer prometheus.Registerer) *PrometheusHook {
	lines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "log_messages",
		Help: "Total number of log lines logged by level",
	}, []string{"level"})
	registerer.MustRegister(lines)
	return &PrometheusHook{lines: lines}
}

func (h *PrometheusHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
}

func (h *PrometheusHook) Fire(entry *logrus.Entry) error {
	h.lines.WithLabelValues(entry.Level.String()).Inc()
	return nil
}
