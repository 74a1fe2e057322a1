package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider installs the Prometheus-backed MeterProvider globally and
// returns the /metrics handler along with its shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// Instruments holds the business counters shared by the services.
type Instruments struct {
	transitions     otelmetric.Int64Counter
	sideEffectFails otelmetric.Int64Counter
	stockRejections otelmetric.Int64Counter
	outboxPublished otelmetric.Int64Counter
	outboxFailures  otelmetric.Int64Counter
	emailsSent      otelmetric.Int64Counter
}

func NewInstruments(meter otelmetric.Meter) (*Instruments, error) {
	var (
		in  Instruments
		err error
	)

	if in.transitions, err = meter.Int64Counter("storefront.order.transitions",
		otelmetric.WithDescription("Order status changes committed")); err != nil {
		return nil, err
	}
	if in.sideEffectFails, err = meter.Int64Counter("storefront.side_effect.failures",
		otelmetric.WithDescription("Best-effort side effects that failed and were rolled back")); err != nil {
		return nil, err
	}
	if in.stockRejections, err = meter.Int64Counter("storefront.stock.rejections",
		otelmetric.WithDescription("Stock deductions rejected for insufficient stock")); err != nil {
		return nil, err
	}
	if in.outboxPublished, err = meter.Int64Counter("storefront.outbox.published",
		otelmetric.WithDescription("Outbox messages published to Kafka")); err != nil {
		return nil, err
	}
	if in.outboxFailures, err = meter.Int64Counter("storefront.outbox.failures",
		otelmetric.WithDescription("Outbox publish attempts that failed")); err != nil {
		return nil, err
	}
	if in.emailsSent, err = meter.Int64Counter("storefront.email.sent",
		otelmetric.WithDescription("Emails handed to the mailer")); err != nil {
		return nil, err
	}

	return &in, nil
}

// NewGlobalInstruments builds Instruments on the global MeterProvider.
func NewGlobalInstruments() (*Instruments, error) {
	return NewInstruments(otel.Meter("storefront-orderflow"))
}

// A nil *Instruments records nothing, so tests can leave it unset.

func (in *Instruments) Transition(ctx context.Context, from, to string) {
	if in == nil {
		return
	}
	in.transitions.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (in *Instruments) SideEffectFailed(ctx context.Context, effect string) {
	if in == nil {
		return
	}
	in.sideEffectFails.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("effect", effect)))
}

func (in *Instruments) StockRejected(ctx context.Context) {
	if in == nil {
		return
	}
	in.stockRejections.Add(ctx, 1)
}

func (in *Instruments) OutboxPublished(ctx context.Context, topic string) {
	if in == nil {
		return
	}
	in.outboxPublished.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("topic", topic)))
}

func (in *Instruments) OutboxFailed(ctx context.Context, topic string) {
	if in == nil {
		return
	}
	in.outboxFailures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("topic", topic)))
}

func (in *Instruments) EmailSent(ctx context.Context, kind string) {
	if in == nil {
		return
	}
	in.emailsSent.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", kind)))
}
