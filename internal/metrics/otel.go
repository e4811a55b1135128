package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var (
	promReaderFactory = prometheusComponents
	otlpReaderFactory = buildOTLPReader
	instrumentFactory = newOtelInstruments
)

// TelemetryConfig controls how metrics are exported.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OtlpEndpoint string
	OtlpInsecure bool
}

// Setup configures OpenTelemetry metrics with a Prometheus exporter and optional OTLP exporter.
// It returns a Recorder, the Prometheus HTTP handler, and a shutdown function.
func Setup(ctx context.Context, cfg TelemetryConfig) (*Recorder, http.Handler, func(context.Context) error, error) {
	if !cfg.Enabled {
		return NewRecorder(), nil, func(context.Context) error { return nil }, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "foospulse"
	}

	promReader, promHandler, err := promReaderFactory()
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithReader(promReader)}

	if cfg.OtlpEndpoint != "" {
		otlpReader, err := otlpReaderFactory(ctx, cfg.OtlpEndpoint, cfg.OtlpInsecure)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, sdkmetric.WithReader(otlpReader))
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	opts = append(opts, sdkmetric.WithResource(res))

	provider := sdkmetric.NewMeterProvider(opts...)

	otelInst, err := instrumentFactory(provider)
	if err != nil {
		return nil, nil, nil, err
	}

	rec := newRecorder(otelInst)
	shutdown := func(c context.Context) error {
		return provider.Shutdown(c)
	}
	return rec, promHandler, shutdown, nil
}

func buildOTLPReader(ctx context.Context, endpoint string, insecure bool) (sdkmetric.Reader, error) {
	otlpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if insecure {
		otlpOpts = append(otlpOpts, otlpmetrichttp.WithInsecure())
	}
	otlpExp, err := otlpmetrichttp.New(ctx, otlpOpts...)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewPeriodicReader(otlpExp, sdkmetric.WithInterval(15*time.Second)), nil
}

func prometheusComponents() (sdkmetric.Reader, http.Handler, error) {
	reg := prometheus.NewRegistry()
	promExp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	return promExp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

type otelInstruments struct {
	ctx              context.Context
	requests         metric.Int64Counter
	requestLatencyMs metric.Float64Histogram
	jobs             metric.Int64Counter
	jobLatencyMs     metric.Float64Histogram
	jobRetries       metric.Int64Counter
	published        metric.Int64Counter
	dropped          metric.Int64Counter
	subscribers      metric.Int64UpDownCounter
}

func newOtelInstruments(provider metric.MeterProvider) (*otelInstruments, error) {
	meter := provider.Meter("foospulse")

	requests, err := meter.Int64Counter("http_requests_total")
	if err != nil {
		return nil, err
	}
	requestLatency, err := meter.Float64Histogram("http_request_duration_ms")
	if err != nil {
		return nil, err
	}
	jobs, err := meter.Int64Counter("jobs_processed_total")
	if err != nil {
		return nil, err
	}
	jobLatency, err := meter.Float64Histogram("job_duration_ms")
	if err != nil {
		return nil, err
	}
	jobRetries, err := meter.Int64Counter("job_retries_total")
	if err != nil {
		return nil, err
	}
	published, err := meter.Int64Counter("broadcast_published_total")
	if err != nil {
		return nil, err
	}
	dropped, err := meter.Int64Counter("broadcast_dropped_total")
	if err != nil {
		return nil, err
	}
	subscribers, err := meter.Int64UpDownCounter("live_subscribers")
	if err != nil {
		return nil, err
	}

	return &otelInstruments{
		ctx:              context.Background(),
		requests:         requests,
		requestLatencyMs: requestLatency,
		jobs:             jobs,
		jobLatencyMs:     jobLatency,
		jobRetries:       jobRetries,
		published:        published,
		dropped:          dropped,
		subscribers:      subscribers,
	}, nil
}

func (o *otelInstruments) recordHTTPRequest(method, path string, status int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(AttrMethod, method),
		attribute.String(AttrPath, path),
		attribute.Int(AttrStatus, status),
	)
	o.requests.Add(o.ctx, 1, attrs)
	o.requestLatencyMs.Record(o.ctx, float64(duration.Milliseconds()), attrs)
}

func (o *otelInstruments) recordJob(kind, outcome string, duration time.Duration) {
	o.jobs.Add(o.ctx, 1, metric.WithAttributes(
		attribute.String(AttrJobKind, kind),
		attribute.String(AttrOutcome, outcome),
	))
	o.jobLatencyMs.Record(o.ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(attribute.String(AttrJobKind, kind)))
}

func (o *otelInstruments) recordJobRetry(kind string) {
	o.jobRetries.Add(o.ctx, 1, metric.WithAttributes(attribute.String(AttrJobKind, kind)))
}

func (o *otelInstruments) recordBroadcast(dropped int) {
	o.published.Add(o.ctx, 1)
	if dropped > 0 {
		o.dropped.Add(o.ctx, int64(dropped))
	}
}

func (o *otelInstruments) addSubscribers(delta int) {
	o.subscribers.Add(o.ctx, int64(delta))
}
