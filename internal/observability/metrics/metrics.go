package metrics

import "github.com/prometheus/client_golang/prometheus"

// IngestionMetrics exposes counters/histograms for webhook ingestion.
type IngestionMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	sendTotal       *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	mergesTotal     prometheus.Counter
	unresolvedTotal *prometheus.CounterVec
}

func NewIngestionMetrics(reg prometheus.Registerer) *IngestionMetrics {
	m := &IngestionMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "ingest",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound webhook events",
		}, []string{"channel", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "ingest",
			Name:      "outbound_webhook_total",
			Help:      "Total externally observed outbound events",
		}, []string{"channel", "status"}),
		sendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "ingest",
			Name:      "send_total",
			Help:      "Total sends through the platform send API",
		}, []string{"channel", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Subsystem: "ingest",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel", "direction"}),
		mergesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "identity",
			Name:      "merges_total",
			Help:      "Total duplicate contacts folded into survivors",
		}),
		unresolvedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "identity",
			Name:      "unresolved_total",
			Help:      "Total events queued for manual identity review",
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.sendTotal, m.webhookLatency, m.mergesTotal, m.unresolvedTotal)
	return m
}

func (m *IngestionMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *IngestionMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *IngestionMetrics) ObserveSend(channel, status string) {
	if m == nil {
		return
	}
	m.sendTotal.WithLabelValues(channel, status).Inc()
}

func (m *IngestionMetrics) ObserveWebhookLatency(channel, direction string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel, direction).Observe(seconds)
}

func (m *IngestionMetrics) ObserveMerge() {
	if m == nil {
		return
	}
	m.mergesTotal.Inc()
}

func (m *IngestionMetrics) ObserveUnresolved(channel string) {
	if m == nil {
		return
	}
	m.unresolvedTotal.WithLabelValues(channel).Inc()
}
