// Package metrics exposes dispatcher telemetry in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatcher"

type Metrics struct {
	registry *prometheus.Registry

	Sends        *prometheus.CounterVec
	SendDuration prometheus.Histogram
	RateLimited  prometheus.Counter
	Inbound      prometheus.Counter
	Throttled    prometheus.Counter
}

// New registers all collectors on a private registry. queueDepth is sampled
// on every scrape; nil skips the gauge.
func New(queueDepth func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		Sends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Gateway send attempts by result (sent, retry, failed).",
		}, []string{"result"}),
		SendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of gateway send calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Dispatch attempts deferred by the rate limiter.",
		}),
		Inbound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages accepted from the gateway webhook.",
		}),
		Throttled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_throttled_total",
			Help:      "Inbound webhook requests rejected with 429.",
		}),
	}

	if queueDepth != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Messages currently waiting in the queue.",
		}, func() float64 { return float64(queueDepth()) })
	}

	return m
}

func (m *Metrics) ObserveSend(result string, d time.Duration) {
	m.Sends.WithLabelValues(result).Inc()
	m.SendDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRateLimited() {
	m.RateLimited.Inc()
}

func (m *Metrics) ObserveInbound() {
	m.Inbound.Inc()
}

func (m *Metrics) ObserveThrottled() {
	m.Throttled.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
