package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FlowMetrics counts OAuth flow outcomes for monitoring.
type FlowMetrics struct {
	InstallsStarted  prometheus.Counter
	CallbackOutcomes *prometheus.CounterVec
	ExchangeFailures *prometheus.CounterVec
}

// New registers flow metrics on the given registerer.
func New(reg prometheus.Registerer) *FlowMetrics {
	factory := promauto.With(reg)
	return &FlowMetrics{
		InstallsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "oauth_installs_started_total",
			Help: "Install redirects issued.",
		}),
		CallbackOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_callbacks_total",
			Help: "Callback results by outcome.",
		}, []string{"outcome"}),
		ExchangeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_exchange_failures_total",
			Help: "Token exchange failures by kind.",
		}, []string{"kind"}),
	}
}
