package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TelemetryProviders holds the initialized OpenTelemetry providers.
type TelemetryProviders struct {
	MeterProvider *sdkmetric.MeterProvider
	Meter         metric.Meter
}

// InitializeTelemetry sets up the OpenTelemetry metrics pipeline with a
// Prometheus exporter. Metrics land in the default Prometheus registry and
// are served by the /metrics endpoint.
func InitializeTelemetry(serviceName, serviceVersion string, logger *slog.Logger) (*TelemetryProviders, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry resource: %w", err)
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	logger.Info("telemetry initialized",
		slog.String("service", serviceName),
		slog.String("exporter", "prometheus"))

	return &TelemetryProviders{
		MeterProvider: meterProvider,
		Meter:         meterProvider.Meter(serviceName),
	}, nil
}

// Shutdown flushes and stops the providers.
func (p *TelemetryProviders) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}
