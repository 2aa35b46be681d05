package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanOperation represents a traced operation type.
type SpanOperation string

// Span operation constants
const (
	SpanOperationSearch        SpanOperation = "catalog.search"
	SpanOperationPage          SpanOperation = "catalog.page"
	SpanOperationVariantCreate SpanOperation = "catalog.variants.create"
	SpanOperationVariantLink   SpanOperation = "catalog.variants.link"

	// SpanOperationMsgPublish represents publishing a catalog event
	SpanOperationMsgPublish SpanOperation = "messaging.publish"
)

// StartCatalogSpan opens an internal span for a catalog operation.
func StartCatalogSpan(ctx context.Context, operation SpanOperation, opts ...CatalogSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("catalog")

	spanOpts := &catalogSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("catalog.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := string(operation)
	if spanOpts.collection != "" {
		spanName = fmt.Sprintf("%s %s", operation, spanOpts.collection)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// CatalogSpanOption configures a catalog span.
type CatalogSpanOption func(*catalogSpanOptions)

type catalogSpanOptions struct {
	collection string
	attributes []attribute.KeyValue
}

// WithCollection sets the collection the operation reads or writes.
func WithCollection(collection string) CatalogSpanOption {
	return func(opts *catalogSpanOptions) {
		opts.collection = collection
		opts.attributes = append(opts.attributes, attribute.String("catalog.collection", collection))
	}
}

// WithAttributes adds arbitrary attributes.
func WithAttributes(attrs ...attribute.KeyValue) CatalogSpanOption {
	return func(opts *catalogSpanOptions) {
		opts.attributes = append(opts.attributes, attrs...)
	}
}

// StartMessagingSpan creates a producer span for publishing to destination.
func StartMessagingSpan(ctx context.Context, system, destination string) (context.Context, trace.Span) {
	tracer := otel.Tracer("messaging")
	ctx, span := tracer.Start(ctx, fmt.Sprintf("MSG %s %s", SpanOperationMsgPublish, destination), trace.WithSpanKind(trace.SpanKindProducer))
	span.SetAttributes(
		attribute.String("messaging.operation", string(SpanOperationMsgPublish)),
		attribute.String("messaging.system", system),
		attribute.String("messaging.destination", destination),
	)
	return ctx, span
}

// RecordError records err on span and marks it failed. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// End finishes span, recording err when non-nil and success otherwise.
func End(span trace.Span, err error) {
	if err != nil {
		RecordError(span, err)
	} else {
		RecordSuccess(span)
	}
	span.End()
}
