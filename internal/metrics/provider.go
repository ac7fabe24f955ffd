package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Provider is the SDK meter provider of the process, read by a Prometheus scrape endpoint.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	registry *prometheus.Registry
}

type Resource struct {
	Service    string
	Version    string
	InstanceID string
}

// NewProvider builds the SDK provider and installs it as the global one, so New and any other
// otel.Meter caller record into it.
func NewProvider(res Resource) (*Provider, error) {
	reg := prometheus.NewRegistry()
	exp, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exp),
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", res.Service),
			attribute.String("service.version", res.Version),
			attribute.String("service.instance.id", res.InstanceID),
		)),
	)
	otel.SetMeterProvider(mp)

	return &Provider{mp: mp, registry: reg}, nil
}

// Handler serves GET /metrics.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Provider) Metrics() *Metrics {
	return NewWithMeter(p.mp.Meter("presence-service"))
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}
