package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Provider is an installed meter provider plus its scrape handler.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// InitProvider installs a global meter provider exporting through Prometheus.
func InitProvider(serviceName string) (*Provider, error) {
	exporter, err := promexporter.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Provider{MeterProvider: mp, Handler: promhttp.Handler()}, nil
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.MeterProvider == nil {
		return nil
	}
	return p.MeterProvider.Shutdown(ctx)
}

// Serve exposes the scrape handler on bind until ctx is cancelled.
func (p *Provider) Serve(ctx context.Context, bind string, log logrus.FieldLogger) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", bind, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.WithField("bind", listener.Addr().String()).Info("serving metrics")
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return nil
}
