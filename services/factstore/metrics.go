// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package factstore

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

// -----------------------------------------------------------------------------
// Metrics
// -----------------------------------------------------------------------------

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factstore_operations_total",
		Help: "Total fact store operations by operation and status",
	}, []string{"operation", "status"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "factstore_operation_duration_seconds",
		Help:    "Fact store operation latency",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"operation"})

	exportFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factstore_export_failures_total",
		Help: "JSON mirror writes that failed after the primary write committed",
	})

	fallbackMatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factstore_fallback_matches_total",
		Help: "GetWithFallback results by the pattern kind that matched",
	}, []string{"kind"})

	exportedFilesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factstore_exported_files_total",
		Help: "JSON mirror files written",
	})
)

// -----------------------------------------------------------------------------
// Tracer
// -----------------------------------------------------------------------------

var tracer = otel.Tracer("factstore")

// startOp opens a span for op and returns a finish func that records the
// outcome on the span and in the operation metrics.
func startOp(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "factstore."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
			operationsTotal.WithLabelValues(op, "error").Inc()
		} else {
			operationsTotal.WithLabelValues(op, "ok").Inc()
		}
		span.End()
	}
}

func keyAttrs(key fact.Key) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("fact.ecosystem", key.Ecosystem),
		attribute.String("fact.tool", key.Tool),
		attribute.String("fact.version", key.Version),
	}
}

func toolAttrs(ecosystem, tool string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("fact.ecosystem", ecosystem),
		attribute.String("fact.tool", tool),
	}
}

// loggerWithTrace returns a logger with trace context attached.
func loggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
