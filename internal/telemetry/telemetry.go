package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
	meter         metric.Meter
	exporter      *prometheus.Exporter

	// RED metrics for the HTTP surface
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Offline pipeline metrics
	downloadsTotal    metric.Int64Counter
	downloadsActive   metric.Int64UpDownCounter
	downloadDuration  metric.Float64Histogram
	opensTotal        metric.Int64Counter
	deletionsTotal    metric.Int64Counter
	bytesDownloaded   metric.Int64Counter
	bytesSavedByCodec metric.Int64Counter

	// Record store metrics
	dbOperationsTotal   metric.Int64Counter
	dbOperationDuration metric.Float64Histogram

	// System health
	goroutineCount metric.Int64Gauge
	memoryUsage    metric.Int64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
}

// New creates a new telemetry instance. A disabled config yields an instance
// whose recording methods are no-ops.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	otel.SetMeterProvider(meterProvider)

	t := &Telemetry{
		meterProvider: meterProvider,
		tracer:        otel.Tracer(cfg.ServiceName),
		meter:         otel.Meter(cfg.ServiceName),
		exporter:      exporter,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if t == nil || t.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.String("status", status),
	)

	t.httpRequestsTotal.Add(context.Background(), 1, attrs)
	t.httpRequestDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight() {
	if t != nil && t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(context.Background(), -1)
	}
}

// RecordDownload records the outcome and duration of one download pipeline run.
func (t *Telemetry) RecordDownload(status string, duration time.Duration) {
	if t == nil || t.downloadsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status))

	t.downloadsTotal.Add(context.Background(), 1, attrs)
	t.downloadDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordDownloadBytes records the volume moved by a successful download and
// the space the codec saved on it.
func (t *Telemetry) RecordDownloadBytes(original, stored int64) {
	if t == nil || t.bytesDownloaded == nil {
		return
	}

	t.bytesDownloaded.Add(context.Background(), original)

	if saved := original - stored; saved > 0 {
		t.bytesSavedByCodec.Add(context.Background(), saved)
	}
}

// IncrementActiveDownloads increments active downloads counter.
func (t *Telemetry) IncrementActiveDownloads() {
	if t != nil && t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), 1)
	}
}

// DecrementActiveDownloads decrements active downloads counter.
func (t *Telemetry) DecrementActiveDownloads() {
	if t != nil && t.downloadsActive != nil {
		t.downloadsActive.Add(context.Background(), -1)
	}
}

// RecordOpen records one open pipeline run.
func (t *Telemetry) RecordOpen(status string) {
	if t != nil && t.opensTotal != nil {
		t.opensTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordDeletion records one deletion pipeline run.
func (t *Telemetry) RecordDeletion(status string) {
	if t != nil && t.deletionsTotal != nil {
		t.deletionsTotal.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordDBOperation records record store operation metrics.
func (t *Telemetry) RecordDBOperation(operation, status string, duration time.Duration) {
	if t == nil || t.dbOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	t.dbOperationsTotal.Add(context.Background(), 1, attrs)
	t.dbOperationDuration.Record(context.Background(), duration.Seconds(), attrs)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t == nil || t.exporter == nil {
		return http.NotFoundHandler()
	}

	return promhttp.Handler()
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		return mp.Shutdown(ctx)
	}

	return nil
}

func (t *Telemetry) initializeMetrics() error {
	var err error

	if t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	); err != nil {
		return err
	}

	if t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	); err != nil {
		return err
	}

	if t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of in-flight HTTP requests"),
	); err != nil {
		return err
	}

	if t.downloadsTotal, err = t.meter.Int64Counter(
		"material_downloads_total",
		metric.WithDescription("Total number of material download attempts"),
	); err != nil {
		return err
	}

	if t.downloadsActive, err = t.meter.Int64UpDownCounter(
		"material_downloads_active",
		metric.WithDescription("Number of downloads currently in flight"),
	); err != nil {
		return err
	}

	if t.downloadDuration, err = t.meter.Float64Histogram(
		"material_download_duration_seconds",
		metric.WithDescription("Material download duration in seconds"),
	); err != nil {
		return err
	}

	if t.opensTotal, err = t.meter.Int64Counter(
		"material_opens_total",
		metric.WithDescription("Total number of offline material opens"),
	); err != nil {
		return err
	}

	if t.deletionsTotal, err = t.meter.Int64Counter(
		"material_deletions_total",
		metric.WithDescription("Total number of offline material deletions"),
	); err != nil {
		return err
	}

	if t.bytesDownloaded, err = t.meter.Int64Counter(
		"material_bytes_downloaded_total",
		metric.WithDescription("Total original bytes fetched from the directory"),
	); err != nil {
		return err
	}

	if t.bytesSavedByCodec, err = t.meter.Int64Counter(
		"material_bytes_saved_total",
		metric.WithDescription("Total bytes saved by compression"),
	); err != nil {
		return err
	}

	if t.dbOperationsTotal, err = t.meter.Int64Counter(
		"record_store_operations_total",
		metric.WithDescription("Total number of record store operations"),
	); err != nil {
		return err
	}

	if t.dbOperationDuration, err = t.meter.Float64Histogram(
		"record_store_operation_duration_seconds",
		metric.WithDescription("Record store operation duration in seconds"),
	); err != nil {
		return err
	}

	if t.goroutineCount, err = t.meter.Int64Gauge(
		"system_goroutines",
		metric.WithDescription("Number of running goroutines"),
	); err != nil {
		return err
	}

	if t.memoryUsage, err = t.meter.Int64Gauge(
		"system_memory_bytes",
		metric.WithDescription("Allocated heap bytes"),
	); err != nil {
		return err
	}

	return nil
}

func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats

			runtime.ReadMemStats(&m)

			t.memoryUsage.Record(context.Background(), int64(m.HeapAlloc))
			t.goroutineCount.Record(context.Background(), int64(runtime.NumGoroutine()))
		}
	}
}
