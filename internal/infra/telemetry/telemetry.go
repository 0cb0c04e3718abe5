package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arklim/wearable-stream-broker/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	activeSessions   prometheus.Gauge
	correlationGauge prometheus.Gauge
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	ns := cfg.Telemetry.MetricsNamespace

	return &Provider{
		activeSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "active_sessions",
			Help:      "Number of live user sessions",
		}),
		correlationGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "pending_correlations",
			Help:      "Number of device requests awaiting a response",
		}),
	}, nil
}

// SetActiveSessions records the current session count.
func (p *Provider) SetActiveSessions(n int) {
	if p == nil {
		return
	}
	p.activeSessions.Set(float64(n))
}

// SetPendingCorrelations records the current correlator backlog.
func (p *Provider) SetPendingCorrelations(n int) {
	if p == nil {
		return
	}
	p.correlationGauge.Set(float64(n))
}
