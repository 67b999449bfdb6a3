// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/mikkihugo/ex-llm-sub002/cmd/factstore/config"
)

const serviceName = "factstore"

// initTracer installs a global tracer provider for the server.
//
// OTLP/gRPC export is used when an endpoint is configured (flag, file or
// OTEL_EXPORTER_OTLP_ENDPOINT), stdout export when TraceStdout is set.
// Otherwise the global no-op provider stays in place and the returned
// cleanup does nothing.
func initTracer(ctx context.Context, cfg config.ServerConfig) (func(context.Context), error) {
	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	var (
		exporter sdktrace.SpanExporter
		conn     *grpc.ClientConn
		err      error
	)
	switch {
	case endpoint != "":
		exporter, conn, err = newOTLPExporter(ctx, endpoint)
	case cfg.TraceStdout:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return func(context.Context) {}, nil
	}
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		if conn != nil {
			_ = conn.Close()
		}
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		shutdownTracing(ctx, provider, conn)
	}, nil
}

// newOTLPExporter dials endpoint and builds an OTLP/gRPC span exporter on
// the connection. The caller owns conn; the exporter never closes it.
func newOTLPExporter(ctx context.Context, endpoint string) (sdktrace.SpanExporter, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return exporter, conn, nil
}

// shutdownTracing flushes provider and then closes conn, which may be nil.
func shutdownTracing(ctx context.Context, provider *sdktrace.TracerProvider, conn *grpc.ClientConn) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down tracer provider", "error", err)
	}
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil {
		slog.Error("failed to close trace exporter connection", "error", err)
	}
}
