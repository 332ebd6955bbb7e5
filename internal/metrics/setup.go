package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider owns the meter provider and the scrape handler for /metrics.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Metrics       *Metrics
	Handler       http.Handler
}

func Setup() (*Provider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(mp)

	m, err := New(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, fmt.Errorf("create instruments: %w", err)
	}

	return &Provider{
		MeterProvider: mp,
		Metrics:       m,
		Handler:       promhttp.Handler(),
	}, nil
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}
