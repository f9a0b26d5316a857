package execution

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	traceScope = "github.com/spetersoncode/aguibridge/execution"

	spanRun   = "aguibridge.execution.run"
	spanDrive = "aguibridge.execution.drive"

	attrThreadID  = "aguibridge.thread_id"
	attrRunID     = "aguibridge.run_id"
	attrAppName   = "aguibridge.app_name"
	attrToolBatch = "aguibridge.tool_batch"
	attrOutcome   = "aguibridge.outcome"
)

func startSpan(ctx context.Context, name string, threadID, runID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	spanAttrs := append([]attribute.KeyValue{
		attribute.String(attrThreadID, threadID),
		attribute.String(attrRunID, runID),
	}, attrs...)
	return otel.Tracer(traceScope).Start(ctx, name, trace.WithAttributes(spanAttrs...))
}

func endSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String(attrOutcome, outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
