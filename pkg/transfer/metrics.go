package transfer

import (
	"context"

	// Packages
	schema "github.com/mutablelogic/go-tablestore/pkg/schema"
	attribute "go.opentelemetry.io/otel/attribute"
	metric "go.opentelemetry.io/otel/metric"
)

////////////////////////////////////////////////////////////////////////////////
// TYPES

// metrics holds the transfer counters, which are nil without a meter
type metrics struct {
	parts   metric.Int64Counter
	retries metric.Int64Counter
	bytes   metric.Int64Counter
}

////////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

func newMetrics(meter metric.Meter) (metrics, error) {
	var m metrics
	var err error
	if meter == nil {
		return m, nil
	}
	if m.parts, err = meter.Int64Counter(schema.SchemaName+".transfer.parts",
		metric.WithDescription("Number of parts accepted by the backend"),
	); err != nil {
		return m, err
	}
	if m.retries, err = meter.Int64Counter(schema.SchemaName+".transfer.part_retries",
		metric.WithDescription("Number of re-issued parts"),
	); err != nil {
		return m, err
	}
	if m.bytes, err = meter.Int64Counter(schema.SchemaName+".transfer.bytes",
		metric.WithDescription("Number of bytes transferred"),
		metric.WithUnit("By"),
	); err != nil {
		return m, err
	}
	return m, nil
}

////////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func (m metrics) part(ctx context.Context, op string) {
	if m.parts != nil {
		m.parts.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func (m metrics) retry(ctx context.Context, op string) {
	if m.retries != nil {
		m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	}
}

func (m metrics) written(ctx context.Context, op string, n int64) {
	if m.bytes != nil && n > 0 {
		m.bytes.Add(ctx, n, metric.WithAttributes(attribute.String("op", op)))
	}
}

func spanName(op string) string {
	return schema.SchemaName + ".transfer." + op
}
