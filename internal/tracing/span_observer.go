// Package tracing adapts task lifecycle transitions into the process
// observability stack: otel spans, prometheus series and debug logs. Each
// adapter is a TaskObserver; the orchestrator invokes them from its
// scheduler goroutine, so every callback here has to stay cheap and must
// not call back into the orchestrator.
package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

// SpanObserver opens one span per executed task and closes it with the
// terminal state. Tasks settled before they ever ran produce no span.
type SpanObserver struct {
	tracer trace.Tracer
	spans  sync.Map // task id -> trace.Span
}

func NewSpanObserver(tracer trace.Tracer) *SpanObserver {
	return &SpanObserver{tracer: tracer}
}

func (so *SpanObserver) OnTaskStart(taskID, groupID string) {
	attrs := []attribute.KeyValue{attribute.String("task.id", taskID)}
	if groupID != "" {
		attrs = append(attrs, attribute.String("task.group_id", groupID))
	}
	_, span := so.tracer.Start(context.Background(), "task.run", trace.WithAttributes(attrs...))
	so.spans.Store(taskID, span)
}

func (so *SpanObserver) OnTaskEnd(taskID string, state model.TaskState, elapsed time.Duration) {
	v, ok := so.spans.LoadAndDelete(taskID)
	if !ok {
		return // settled while still queued
	}
	span := v.(trace.Span)
	span.SetAttributes(
		attribute.String("task.state", string(state)),
		attribute.Int64("task.elapsed_ms", elapsed.Milliseconds()),
	)
	switch state {
	case model.TaskStateFailed, model.TaskStateTimedOut:
		span.SetStatus(codes.Error, string(state))
	default:
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
