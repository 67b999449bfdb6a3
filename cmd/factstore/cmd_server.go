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
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/api"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	var (
		addr  string
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the fact store over HTTP",
		Long: `serve exposes the store under /v1, with /health and Prometheus
/metrics. Traces are exported over OTLP when server.otlp_endpoint or
OTEL_EXPORTER_OTLP_ENDPOINT is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg := opts.cfg.Server
			if cmd.Flags().Changed("addr") {
				srvCfg.Addr = addr
			}

			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cleanup, err := initTracer(ctx, srvCfg)
			if err != nil {
				return err
			}
			defer cleanup(context.Background())

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			logger := opts.logger.Slog()
			router := api.NewRouter(api.NewHandlers(store, logger), serviceName,
				api.WithRateLimit(srvCfg.RateLimit, srvCfg.RateBurst))

			srv := &http.Server{Addr: srvCfg.Addr, Handler: router}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting fact store server", slog.String("address", srvCfg.Addr))
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down fact store server")
			timeout := srvCfg.ShutdownTimeout
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:8088)")
	cmd.Flags().BoolVar(&debug, "debug", false, "run gin in debug mode")
	return cmd
}
