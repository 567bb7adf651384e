package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MetricsConfig configures the meter provider.
type MetricsConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes the billing instruments.
type Metrics struct {
	invoicesIssued   metric.Int64Counter
	paymentsApplied  metric.Int64Counter
	paymentsVerified metric.Int64Counter
	refundsCompleted metric.Int64Counter
	conflictRetries  metric.Int64Counter
}

// NewProvider configures and registers the meter provider. When metrics
// are disabled a noop provider keeps the instruments callable.
func NewProvider(lc fx.Lifecycle, cfg MetricsConfig, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				log.Info("shutting down meter provider")
				return provider.Shutdown(ctx)
			},
		})
	}

	log.Info("metrics initialized",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

// NewMetrics configures the billing instruments.
func NewMetrics(cfg MetricsConfig, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "bursar"
	}
	meter := provider.Meter(name)

	invoicesIssued, err := meter.Int64Counter("bursar_invoices_issued_total")
	if err != nil {
		return nil, err
	}
	paymentsApplied, err := meter.Int64Counter("bursar_payments_applied_total")
	if err != nil {
		return nil, err
	}
	paymentsVerified, err := meter.Int64Counter("bursar_payments_verified_total")
	if err != nil {
		return nil, err
	}
	refundsCompleted, err := meter.Int64Counter("bursar_refunds_completed_total")
	if err != nil {
		return nil, err
	}
	conflictRetries, err := meter.Int64Counter("bursar_settlement_conflict_retries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesIssued:   invoicesIssued,
		paymentsApplied:  paymentsApplied,
		paymentsVerified: paymentsVerified,
		refundsCompleted: refundsCompleted,
		conflictRetries:  conflictRetries,
	}, nil
}

func (m *Metrics) InvoiceIssued(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesIssued.Add(ctx, 1)
}

func (m *Metrics) PaymentApplied(ctx context.Context, method string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.paymentsApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) PaymentVerified(ctx context.Context) {
	if m == nil {
		return
	}
	m.paymentsVerified.Add(ctx, 1)
}

func (m *Metrics) RefundCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.refundsCompleted.Add(ctx, 1)
}

func (m *Metrics) ConflictRetried(ctx context.Context) {
	if m == nil {
		return
	}
	m.conflictRetries.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// allowedLabelKeys bounds metric cardinality; anything else is dropped.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"method":      {},
	"status_code": {},
	"endpoint":    {},
	"reason":      {},
}

// FilterAttributes drops attributes outside the allow list and empty values.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		if attr.Value.Type() == attribute.STRING && strings.TrimSpace(attr.Value.AsString()) == "" {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
