package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("saascore/handlers")

// Span is a span of a collector that takes attributes as a map, like the
// Aeonis tracer.
type Span interface {
	SetAttributes(attrs map[string]interface{})
	SetError(message, stack string)
	End()
}

// SpanStarter opens a child of the span carried by ctx.
type SpanStarter func(ctx context.Context, name string) (context.Context, Span)

const mirrorSpanKey = "saascore.mirror_span"

// handlerSpan records into the otel span and the mirror span when there is one.
type handlerSpan struct {
	span   trace.Span
	mirror Span
}

func (a *API) startSpan(c *gin.Context, name string) (context.Context, *handlerSpan) {
	ctx, span := tracer.Start(c.Request.Context(), name)
	hs := &handlerSpan{span: span}
	if a.mirror != nil {
		ctx, hs.mirror = a.mirror(ctx, name)
	}
	return ctx, hs
}

func (s *handlerSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.span.SetAttributes(kv...)
	if s.mirror != nil {
		s.mirror.SetAttributes(attrMap(kv))
	}
}

func (s *handlerSpan) RecordError(err error) {
	s.span.RecordError(err)
	if s.mirror != nil {
		s.mirror.SetError(err.Error(), "")
	}
}

func (s *handlerSpan) End() {
	if s.mirror != nil {
		s.mirror.End()
	}
	s.span.End()
}

func attrMap(kv []attribute.KeyValue) map[string]interface{} {
	m := make(map[string]interface{}, len(kv))
	for _, a := range kv {
		m[string(a.Key)] = a.Value.AsInterface()
	}
	return m
}

// recordMirrorError marks the request's mirror root span as failed.
func recordMirrorError(c *gin.Context, err error) {
	if v, ok := c.Get(mirrorSpanKey); ok {
		v.(Span).SetError(err.Error(), "")
	}
}
