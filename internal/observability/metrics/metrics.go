package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the scheduling and
// dispatch pipeline. A nil receiver is safe and records nothing.
type EngineMetrics struct {
	sendsTotal       *prometheus.CounterVec
	webhooksTotal    *prometheus.CounterVec
	conversionsTotal *prometheus.CounterVec
	tickDuration     prometheus.Histogram
	tickScheduled    prometheus.Histogram
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		sendsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenueangel",
			Subsystem: "engine",
			Name:      "sends_total",
			Help:      "Playbook sends by channel and terminal status",
		}, []string{"channel", "status"}),
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenueangel",
			Subsystem: "engine",
			Name:      "webhook_events_total",
			Help:      "Processed webhook events by type and outcome",
		}, []string{"event_type", "outcome"}),
		conversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenueangel",
			Subsystem: "engine",
			Name:      "conversions_total",
			Help:      "Recorded conversions by attribution outcome",
		}, []string{"attributed"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "revenueangel",
			Subsystem: "engine",
			Name:      "scheduler_tick_seconds",
			Help:      "Duration of scheduler ticks",
			Buckets:   prometheus.DefBuckets,
		}),
		tickScheduled: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "revenueangel",
			Subsystem: "engine",
			Name:      "scheduler_tick_sends",
			Help:      "Sends scheduled per tick",
			Buckets:   []float64{0, 1, 5, 10, 50, 100, 500},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sendsTotal, m.webhooksTotal, m.conversionsTotal, m.tickDuration, m.tickScheduled)
	return m
}

func (m *EngineMetrics) ObserveSend(channel, status string) {
	if m == nil {
		return
	}
	m.sendsTotal.WithLabelValues(channel, status).Inc()
}

func (m *EngineMetrics) ObserveWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhooksTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *EngineMetrics) ObserveConversion(attributed bool) {
	if m == nil {
		return
	}
	label := "false"
	if attributed {
		label = "true"
	}
	m.conversionsTotal.WithLabelValues(label).Inc()
}

func (m *EngineMetrics) ObserveTick(seconds float64, scheduled int) {
	if m == nil {
		return
	}
	m.tickDuration.Observe(seconds)
	m.tickScheduled.Observe(float64(scheduled))
}
