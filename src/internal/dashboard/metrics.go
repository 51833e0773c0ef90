package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hoangvu/wireproxyman/src/internal/events"
	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

// metrics tracks connect activity, fed from the event bus so the core stays
// free of instrumentation.
type metrics struct {
	registry        *prometheus.Registry
	connects        prometheus.Counter
	connectFailures prometheus.Counter
	disconnects     prometheus.Counter
	autoRuns        prometheus.Counter
}

func newMetrics(store *profile.Store) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wireproxyman_connects_total",
			Help: "Number of successful profile connects.",
		}),
		connectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wireproxyman_connect_failures_total",
			Help: "Number of failed profile connect attempts.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wireproxyman_disconnects_total",
			Help: "Number of profile disconnects.",
		}),
		autoRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wireproxyman_autoconnect_runs_total",
			Help: "Number of completed auto-connect runs.",
		}),
	}

	runningGauge := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "wireproxyman_running_profiles",
		Help: "Profiles with a live wireproxy process.",
	}, func() float64 {
		n := 0
		for _, p := range store.Snapshot() {
			if p.Running {
				n++
			}
		}
		return float64(n)
	})

	m.registry.MustRegister(m.connects, m.connectFailures, m.disconnects, m.autoRuns, runningGauge)
	return m
}

func (m *metrics) observe(e events.Event) {
	switch e.Type {
	case events.ProfileStarted:
		m.connects.Inc()
	case events.ProfileStopped:
		m.disconnects.Inc()
	case events.AutoConnectProgress:
		if e.Error != "" {
			m.connectFailures.Inc()
		} else if e.Port != 0 {
			m.connects.Inc()
		}
	case events.AutoConnectFinished:
		m.autoRuns.Inc()
	}
}
