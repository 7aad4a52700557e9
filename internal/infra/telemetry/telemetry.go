package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arclightapps/identity-gateway/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	eventsDropped  prometheus.Counter
	eventsRecorded prometheus.Counter
}

// Attach registers service-level collectors and returns a provider handle.
// HTTP request metrics live in the transport middleware; this covers the
// security event pipeline.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	recorded := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "idgw",
		Name:      "security_events_recorded_total",
		Help:      "Security events accepted into the dispatch buffer",
	})

	dropped := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "idgw",
		Name:      "security_events_dropped_total",
		Help:      "Security events dropped because the event buffer was full",
	})

	return &Provider{
		eventsDropped:  dropped,
		eventsRecorded: recorded,
	}, nil
}

// EventsRecordedCounter exposes the accepted security event metric.
func (p *Provider) EventsRecordedCounter() prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.eventsRecorded
}

// EventsDroppedCounter exposes the dropped security event metric.
func (p *Provider) EventsDroppedCounter() prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.eventsDropped
}
