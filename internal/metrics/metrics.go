package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"Relay_Selector_Go/internal/engine"
	"Relay_Selector_Go/pkg/model"
)

const namespace = "relay_selector"

// Collector 将探测结果导出为 Prometheus 指标
type Collector struct {
	probes    *prometheus.CounterVec
	rtt       prometheus.Histogram
	endpoints *prometheus.CounterVec
	active    prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_total",
			Help:      "TCP connect probes by outcome.",
		}, []string{"outcome"}),
		rtt: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_rtt_seconds",
			Help:      "TCP handshake time of successful probes.",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2, 11),
		}),
		endpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoints_sampled_total",
			Help:      "Endpoints whose sampling finished, by reachability.",
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "endpoints_in_flight",
			Help:      "Endpoints currently being sampled.",
		}),
	}
	reg.MustRegister(c.probes, c.rtt, c.endpoints, c.active)
	return c
}

func (c *Collector) ObserveSample(s model.ProbeSample) {
	c.probes.WithLabelValues(s.Outcome.String()).Inc()
	if s.Success() {
		c.rtt.Observe(s.Duration.Seconds())
	}
}

func (c *Collector) ObserveEndpoint(st *model.EndpointStats) {
	c.active.Dec()
	switch {
	case st.Cancelled:
		c.endpoints.WithLabelValues("cancelled").Inc()
	case st.Reachable():
		c.endpoints.WithLabelValues("reachable").Inc()
	default:
		c.endpoints.WithLabelValues("unreachable").Inc()
	}
}

// Callbacks 返回接入引擎的回调；next 中的回调会在指标更新后被调用
func (c *Collector) Callbacks(next engine.Callbacks) engine.Callbacks {
	return engine.Callbacks{
		OnEndpointStart: func(ep model.Endpoint) {
			c.active.Inc()
			if next.OnEndpointStart != nil {
				next.OnEndpointStart(ep)
			}
		},
		OnSample: func(s model.ProbeSample) {
			c.ObserveSample(s)
			if next.OnSample != nil {
				next.OnSample(s)
			}
		},
		OnEndpointDone: func(st *model.EndpointStats) {
			c.ObserveEndpoint(st)
			if next.OnEndpointDone != nil {
				next.OnEndpointDone(st)
			}
		},
	}
}
