package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hamdani2020/edagent-auth/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

type AppMetrics struct {
	sessionCreateCounter metric.Int64Counter
	sessionRevokeCounter metric.Int64Counter
	keyCreateCounter     metric.Int64Counter
	keyRevokeCounter     metric.Int64Counter
	validationCounter    metric.Int64Counter
	cleanupCounter       metric.Int64Counter
	repositoryCounter    metric.Int64Counter
	rateLimitCounter     metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("edagent-auth")
	m := &AppMetrics{}
	if m.sessionCreateCounter, err = meter.Int64Counter("auth.session.created"); err != nil {
		return nil, err
	}
	if m.sessionRevokeCounter, err = meter.Int64Counter("auth.session.revoked"); err != nil {
		return nil, err
	}
	if m.keyCreateCounter, err = meter.Int64Counter("auth.apikey.created"); err != nil {
		return nil, err
	}
	if m.keyRevokeCounter, err = meter.Int64Counter("auth.apikey.revoked"); err != nil {
		return nil, err
	}
	if m.validationCounter, err = meter.Int64Counter("auth.validation.attempts"); err != nil {
		return nil, err
	}
	if m.cleanupCounter, err = meter.Int64Counter("auth.cleanup.rows"); err != nil {
		return nil, err
	}
	if m.repositoryCounter, err = meter.Int64Counter("repository.operations"); err != nil {
		return nil, err
	}
	if m.rateLimitCounter, err = meter.Int64Counter("http.rate_limit.decisions"); err != nil {
		return nil, err
	}

	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordValidation counts one credential validation attempt. The
// credential attribute is "session" or "api_key"; outcome is "valid", a
// failure reason, or "transient".
func RecordValidation(ctx context.Context, credential, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.validationCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("credential", credential),
		attribute.String("outcome", outcome),
	))
}

func RecordSessionCreated(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.sessionCreateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordSessionRevoked(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.sessionRevokeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAPIKeyCreated(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.keyCreateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordAPIKeyRevoked(ctx context.Context, status string) {
	m := current()
	if m == nil {
		return
	}
	m.keyRevokeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCleanup counts rows moved by one sweep, split by phase
// ("expired" for phase one status flips, "deleted" for phase two purges).
func RecordCleanup(ctx context.Context, phase string, rows int64) {
	m := current()
	if m == nil || rows <= 0 {
		return
	}
	m.cleanupCounter.Add(ctx, rows, metric.WithAttributes(attribute.String("phase", phase)))
}

// RecordRateLimitDecision counts one limiter verdict per scope. The
// decision attribute is "allow", "deny", or "backend_error".
func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
	))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
