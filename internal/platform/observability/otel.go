package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"fulfillment/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newResource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
}

func joinShutdown(fns *[]func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var err error
		for _, fn := range *fns {
			err = errors.Join(err, fn(ctx))
		}
		*fns = nil
		return err
	}
}

// SetupLoggingSDK initializes OpenTelemetry logging with the provided configuration
func SetupLoggingSDK(ctx context.Context, cfg *config.Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = joinShutdown(&shutdownFuncs)

	if !cfg.TelemetryEnabled() {
		return shutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.OtelEndpoint),
		otlploghttp.WithURLPath(config.LogsPath),
		otlploghttp.WithHeaders(map[string]string{"Authorization": cfg.OtelAuthHeader}),
	)
	if err != nil {
		return shutdown, fmt.Errorf("OTLP Log Exporter: %w", err)
	}

	logProcessor := sdklog.NewBatchProcessor(logExporter,
		sdklog.WithExportTimeout(config.ExportTimeout),
		sdklog.WithMaxQueueSize(config.MaxQueueSize),
	)
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(logProcessor),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)
	shutdownFuncs = append(shutdownFuncs, loggerProvider.Shutdown)

	return shutdown, nil
}

// SetupTracingSDK initializes OpenTelemetry tracing with the provided configuration.
// The propagator is installed even when export is disabled so trace context still
// flows through Kafka headers between services.
func SetupTracingSDK(ctx context.Context, cfg *config.Config) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error
	shutdown = joinShutdown(&shutdownFuncs)

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.TelemetryEnabled() {
		return shutdown, nil
	}

	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OtelEndpoint),
		otlptracehttp.WithURLPath(config.TracesPath),
		otlptracehttp.WithHeaders(map[string]string{"Authorization": cfg.OtelAuthHeader}),
	)
	if err != nil {
		return shutdown, fmt.Errorf("OTLP Trace Exporter: %w", err)
	}

	traceProcessor := sdktrace.NewBatchSpanProcessor(traceExporter,
		sdktrace.WithExportTimeout(config.ExportTimeout),
		sdktrace.WithMaxQueueSize(config.MaxQueueSize),
	)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(traceProcessor),
	)
	otel.SetTracerProvider(tracerProvider)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)

	return shutdown, nil
}

// NewLogger builds the service logger: JSON to stdout teed into the OpenTelemetry
// log bridge. The bridge is a no-op until SetupLoggingSDK installs a provider.
func NewLogger(serviceName string) *zap.Logger {
	otelZapCore := otelzap.NewCore(serviceName+".manual",
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	)

	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	return zap.New(zapcore.NewTee(otelZapCore, consoleCore),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", serviceName)),
	)
}
