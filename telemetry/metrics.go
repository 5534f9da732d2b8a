// Package telemetry provides the server's metrics instruments, built on the
// OpenTelemetry metric API with a Prometheus scrape endpoint.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "github.com/hanko213/campaignd"

// Metrics holds the instruments recorded by the request handlers.
type Metrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	errorsTotal     metric.Int64Counter
	uploadsTotal    metric.Int64Counter
	downloadsTotal  metric.Int64Counter
	bytesSentTotal  metric.Int64Counter

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// Init initializes the metrics system with a Prometheus exporter. It is
// safe to call more than once; only the first call takes effect. The
// returned shutdown function flushes and stops the meter provider.
func Init() (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInit()
	})
	if initErr != nil {
		return nil, initErr
	}
	return func(ctx context.Context) error {
		if globalMetrics == nil || globalMetrics.meterProvider == nil {
			return nil
		}
		return globalMetrics.meterProvider.Shutdown(ctx)
	}, nil
}

func doInit() error {
	promExp, err := promexporter.New()
	if err != nil {
		return err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.Default()),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter(meterName)
	m := &Metrics{
		meterProvider: mp,
		promHandler:   promhttp.Handler(),
	}

	if m.requestsTotal, err = meter.Int64Counter(
		"campaignd_requests_total",
		metric.WithDescription("Total number of client requests by operation"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"campaignd_request_duration_seconds",
		metric.WithDescription("Request servicing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	); err != nil {
		return err
	}

	if m.errorsTotal, err = meter.Int64Counter(
		"campaignd_errors_total",
		metric.WithDescription("Total number of error replies by status code"),
		metric.WithUnit("{error}"),
	); err != nil {
		return err
	}

	if m.uploadsTotal, err = meter.Int64Counter(
		"campaignd_uploads_total",
		metric.WithDescription("Total number of accepted uploads by kind (full or delta)"),
		metric.WithUnit("{upload}"),
	); err != nil {
		return err
	}

	if m.downloadsTotal, err = meter.Int64Counter(
		"campaignd_downloads_total",
		metric.WithDescription("Total number of served downloads by kind (full or delta)"),
		metric.WithUnit("{download}"),
	); err != nil {
		return err
	}

	if m.bytesSentTotal, err = meter.Int64Counter(
		"campaignd_bytes_sent_total",
		metric.WithDescription("Total payload bytes sent by kind"),
		metric.WithUnit("By"),
	); err != nil {
		return err
	}

	globalMetrics = m
	return nil
}

// PrometheusHandler returns the scrape endpoint handler, or a 404 handler
// when metrics are not initialized.
func PrometheusHandler() http.Handler {
	if globalMetrics == nil || globalMetrics.promHandler == nil {
		return http.NotFoundHandler()
	}
	return globalMetrics.promHandler
}

// RecordRequest records one serviced request.
func RecordRequest(ctx context.Context, operation string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	globalMetrics.requestsTotal.Add(ctx, 1, attrs)
	globalMetrics.requestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordError records one error reply.
func RecordError(ctx context.Context, statusCode string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", statusCode)))
}

// RecordUpload records one accepted upload.
func RecordUpload(ctx context.Context, kind string) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.uploadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordDownload records one served download and its payload size.
func RecordDownload(ctx context.Context, kind string, bytes int64) {
	if globalMetrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	globalMetrics.downloadsTotal.Add(ctx, 1, attrs)
	globalMetrics.bytesSentTotal.Add(ctx, bytes, attrs)
}
