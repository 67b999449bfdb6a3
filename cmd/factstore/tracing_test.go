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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"google.golang.org/grpc/connectivity"

	"github.com/mikkihugo/ex-llm-sub002/cmd/factstore/config"
)

func TestInitTracer_NoopWithoutExporter(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	cleanup, err := initTracer(context.Background(), config.ServerConfig{})
	require.NoError(t, err)
	require.NotNil(t, cleanup)
	cleanup(context.Background())
}

func TestShutdownTracing_ClosesExporterConn(t *testing.T) {
	ctx := context.Background()

	// The client connects lazily, so nothing needs to listen here.
	exporter, conn, err := newOTLPExporter(ctx, "127.0.0.1:4317")
	require.NoError(t, err)
	require.NotNil(t, conn)

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	shutdownTracing(ctx, provider, conn)

	assert.Equal(t, connectivity.Shutdown, conn.GetState())
}

func TestShutdownTracing_NilConn(t *testing.T) {
	provider := sdktrace.NewTracerProvider()
	assert.NotPanics(t, func() { shutdownTracing(context.Background(), provider, nil) })
}
