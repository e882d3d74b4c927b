package telemetry

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/examplerun/internal/task"
)

const tracerName = "examplerun"

// StartRun opens the parent span covering a whole validation run.
func StartRun(ctx context.Context, runID string, total, workers int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.scripts", total),
			attribute.Int("run.workers", workers),
		),
	)
}

// EndRun records the run outcome on span and ends it.
func EndRun(span trace.Span, report *task.RunReport) {
	span.SetAttributes(
		attribute.Int("run.passed", report.Passed),
		attribute.Int("run.failed", report.Failed),
		attribute.Float64("run.success_rate", report.SuccessRate),
	)
	if report.Failed > 0 {
		span.SetStatus(codes.Error, "scripts failed")
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// TraceExec wraps fn so that every script execution becomes a span.
func TraceExec(fn task.ExecFn) task.ExecFn {
	return func(ctx context.Context, t *task.Task) *task.TaskResult {
		ctx, span := otel.Tracer(tracerName).Start(ctx, "script.run",
			trace.WithAttributes(
				attribute.String("script.path", t.ID),
				attribute.Int("script.index", t.Index),
				attribute.Bool("script.stdin", t.HasInput()),
			),
		)
		defer span.End()

		res := fn(ctx, t)
		if res == nil {
			span.SetStatus(codes.Error, "no result")
			return nil
		}

		span.SetAttributes(
			attribute.Int("script.exit_code", res.ExitCode),
			attribute.Int64("script.duration_ms", res.DurationMS),
		)
		if res.Success {
			span.SetStatus(codes.Ok, "")
			return res
		}
		span.SetAttributes(attribute.String("script.reason", string(res.Reason)))
		if res.ConnectivityError != "" {
			span.SetAttributes(attribute.String("script.connectivity", res.ConnectivityError))
		}
		span.AddEvent("script.failed")
		span.SetStatus(codes.Error, firstLine(res.Error))
		return res
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
