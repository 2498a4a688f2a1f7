package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bryanreynaldy/social-media-api/internal/shared/id"
)

// TraceID ties together all spans of one extraction or task request.
type TraceID string

// SpanID identifies a single operation inside a trace.
type SpanID string

type ctxKey string

const (
	traceIDKey ctxKey = "trace_id"
	spanIDKey  ctxKey = "span_id"

	// spanBuffer bounds the export queue; the exporter drops rather
	// than backpressure request handling.
	spanBuffer = 1000
)

// Span records one timed operation. Handlers tag it with the request
// shape (method, platform, outcome) before submitting.
type Span struct {
	TraceID    TraceID
	SpanID     SpanID
	ParentID   SpanID
	Name       string
	Service    string
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Tags       map[string]string
	Error      error
	StatusCode int
}

// Finish stamps the end time and computes the duration.
func (s *Span) Finish() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetError marks the span failed. The status defaults to 500 until
// SetStatus overwrites it with the real response code.
func (s *Span) SetError(err error) {
	s.Error = err
	s.StatusCode = 500
}

func (s *Span) SetStatus(code int) {
	s.StatusCode = code
}

// Tracer collects spans and exports them through the service logger.
// There is no external collector; traces land in the structured log
// stream where trace_id correlates the request's task and fetch lines.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
}

func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, spanBuffer),
	}
	go t.export()
	return t
}

// StartSpan opens a span under the trace carried by ctx, starting a
// fresh trace when there is none. The returned context carries the new
// span as parent for anything started beneath it.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}
	parentID, _ := ctx.Value(spanIDKey).(SpanID)

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewRequestID()),
		ParentID:  parentID,
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// Submit queues a finished span for export, dropping when the buffer
// is full.
func (t *Tracer) Submit(span *Span) {
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("Span buffer full, dropping span",
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
		)
	}
}

func (t *Tracer) export() {
	for span := range t.spans {
		fields := []zap.Field{
			zap.String("trace_id", string(span.TraceID)),
			zap.String("span_id", string(span.SpanID)),
			zap.String("operation", span.Name),
			zap.Duration("duration", span.Duration),
			zap.String("service", span.Service),
		}
		if span.ParentID != "" {
			fields = append(fields, zap.String("parent_id", string(span.ParentID)))
		}
		for k, v := range span.Tags {
			fields = append(fields, zap.String(k, v))
		}

		if span.Error != nil {
			fields = append(fields, zap.Error(span.Error))
			t.logger.Error("Span completed with error", fields...)
		} else {
			t.logger.Info("Span completed", fields...)
		}
	}
}

// ExtractTraceContext reads the propagation headers sent by upstream
// callers.
func ExtractTraceContext(headers map[string]string) (TraceID, SpanID) {
	return TraceID(headers["X-Trace-ID"]), SpanID(headers["X-Span-ID"])
}
