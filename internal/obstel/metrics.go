package obstel

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
)

// Instruments holds the pipeline-wide metric handles components look up via
// the global meter provider; kept here so every caller uses the same names.
type Instruments struct {
	TasksCreated   metric.Int64Counter
	TasksCompleted metric.Int64Counter
	TasksFailed    metric.Int64Counter
	GateWaitMillis metric.Float64Histogram
}

// InitMetrics sets up a global OTLP metrics exporter (push). Returns a
// shutdown function and the common instrument set. Like InitTracer, this
// never fails startup.
func InitMetrics(ctx context.Context, service string) (shutdown func(context.Context) error, instruments Instruments) {
	res, _ := sdkresource.Merge(sdkresource.Default(), sdkresource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(service),
		attribute.String("service", service),
	))

	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	ctxInit, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exp, err := otlpmetricgrpc.New(ctxInit,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithDialOption(grpc.WithInsecure()),
	)
	if err != nil {
		slog.Warn("otel metrics exporter init failed", "error", err)
		return func(context.Context) error { return nil }, commonInstruments()
	}

	reader := sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(10*time.Second))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)
	slog.Info("otel metrics initialized", "endpoint", endpoint)
	return mp.Shutdown, commonInstruments()
}

func commonInstruments() Instruments {
	meter := otel.Meter("cogniblock-orchestrator")
	created, _ := meter.Int64Counter("cogniblock_tasks_created_total")
	completed, _ := meter.Int64Counter("cogniblock_tasks_completed_total")
	failed, _ := meter.Int64Counter("cogniblock_tasks_failed_total")
	gateWait, _ := meter.Float64Histogram("cogniblock_gate_wait_ms")
	return Instruments{
		TasksCreated:   created,
		TasksCompleted: completed,
		TasksFailed:    failed,
		GateWaitMillis: gateWait,
	}
}
