package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestIngestionMetricsObserve(t *testing.T) {
	m := NewIngestionMetrics(nil)
	m.ObserveInbound("whatsapp", "ok")
	m.ObserveOutbound("whatsapp", "ok")
	m.ObserveSend("telegram", "failed")
	m.ObserveWebhookLatency("whatsapp", "inbound", 0.5)
	m.ObserveMerge()
	m.ObserveUnresolved("facebook")
}

func TestIngestionMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIngestionMetrics(reg)
	m.ObserveInbound("facebook", "ok")
}

func TestIngestionMetricsNilSafe(t *testing.T) {
	var m *IngestionMetrics
	m.ObserveInbound("whatsapp", "ok")
	m.ObserveOutbound("whatsapp", "ok")
	m.ObserveSend("whatsapp", "ok")
	m.ObserveWebhookLatency("whatsapp", "inbound", 0.1)
	m.ObserveMerge()
	m.ObserveUnresolved("whatsapp")
}
