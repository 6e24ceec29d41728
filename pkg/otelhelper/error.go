package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// RejectionKey holds the messages of a rejected transition.
const RejectionKey = "stepwise.rejection.messages"

// SetError marks span as failed with err.
func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetRejected records a business rejection. The span status stays unset: a
// hook refusing a transition is an expected outcome, not a fault.
func SetRejected(span trace.Span, messages []string, attrs ...attribute.KeyValue) {
	span.AddEvent("transition_rejected", trace.WithAttributes(
		append(attrs, attribute.StringSlice(RejectionKey, messages))...,
	))
}
