package otelnats

import (
	"context"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("collabboard-sync")

// headerCarrier adapts nats.Header to propagation.TextMapCarrier.
type headerCarrier struct {
	header nats.Header
}

func (c *headerCarrier) Get(key string) string { return c.header.Get(key) }

func (c *headerCarrier) Set(key, value string) { c.header.Set(key, value) }

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.header))
	for k := range c.header {
		keys = append(keys, k)
	}
	return keys
}

// InjectContext builds a nats.Header carrying the trace context.
func InjectContext(ctx context.Context) nats.Header {
	h := nats.Header{}
	otel.GetTextMapPropagator().Inject(ctx, &headerCarrier{header: h})
	return h
}

// ExtractContext pulls trace context out of a message header.
func ExtractContext(ctx context.Context, header nats.Header) context.Context {
	if header == nil {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, &headerCarrier{header: header})
}

func messagingAttrs(subject string, size int) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination.name", subject),
		attribute.Int("messaging.message.payload_size_bytes", size),
	)
}

// TracedPublish publishes with trace context in the headers, under a
// producer span.
func TracedPublish(ctx context.Context, nc *nats.Conn, subject string, data []byte) error {
	ctx, span := tracer.Start(ctx, subject+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		messagingAttrs(subject, len(data)),
	)
	defer span.End()

	return nc.PublishMsg(&nats.Msg{
		Subject: subject,
		Data:    data,
		Header:  InjectContext(ctx),
	})
}

// StartConsumerSpan extracts trace context from a message and opens a
// consumer span. The caller ends the span.
func StartConsumerSpan(ctx context.Context, msg *nats.Msg, operation string) (context.Context, trace.Span) {
	ctx = ExtractContext(ctx, msg.Header)
	return tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindConsumer),
		messagingAttrs(msg.Subject, len(msg.Data)),
	)
}

// StartServerSpan extracts trace context from a request message and
// opens a server span for a request/reply responder. The caller ends
// the span.
func StartServerSpan(ctx context.Context, msg *nats.Msg, operation string) (context.Context, trace.Span) {
	ctx = ExtractContext(ctx, msg.Header)
	return tracer.Start(ctx, operation,
		trace.WithSpanKind(trace.SpanKindServer),
		messagingAttrs(msg.Subject, len(msg.Data)),
	)
}
