// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all fact store routes with the router.
//
// Fact Endpoints:
//
//	GET    /v1/facts/:eco - List every key in an ecosystem
//	GET    /v1/facts/:eco/:tool/versions - Stored versions of a tool
//	GET    /v1/facts/:eco/:tool/latest - Highest stored version
//	GET    /v1/facts/:eco/:tool/query - Versions matching ?pattern= or ?constraint=
//	GET    /v1/facts/:eco/:tool/fallback - Best match for ?version=
//	GET    /v1/facts/:eco/:tool/compare - Two versions side by side (?v1=&v2=)
//	GET    /v1/facts/:eco/:tool/:version - Get one fact
//	PUT    /v1/facts/:eco/:tool/:version - Store one fact
//	DELETE /v1/facts/:eco/:tool/:version - Delete one fact
//
// Store Endpoints:
//
//	GET  /v1/search - Keys with an encoded ?prefix=
//	GET  /v1/stats - Entry counts and sizes
//	POST /v1/export - Write every fact to the JSON mirror
//
// Path segments containing "/" (such as "@next/font") must be sent
// percent-encoded; NewRouter enables raw path matching for that.
//
// Example:
//
//	handlers := api.NewHandlers(store, logger)
//	v1 := router.Group("/v1")
//	api.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	facts := rg.Group("/facts")
	{
		facts.GET("/:eco", handlers.HandleListEcosystem)

		facts.GET("/:eco/:tool/versions", handlers.HandleVersions)
		facts.GET("/:eco/:tool/latest", handlers.HandleLatest)
		facts.GET("/:eco/:tool/query", handlers.HandleQuery)
		facts.GET("/:eco/:tool/fallback", handlers.HandleFallback)
		facts.GET("/:eco/:tool/compare", handlers.HandleCompare)

		facts.GET("/:eco/:tool/:version", handlers.HandleGetFact)
		facts.PUT("/:eco/:tool/:version", handlers.HandlePutFact)
		facts.DELETE("/:eco/:tool/:version", handlers.HandleDeleteFact)
	}

	rg.GET("/search", handlers.HandleSearch)
	rg.GET("/stats", handlers.HandleStats)
	rg.POST("/export", handlers.HandleExport)
}

// NewRouter builds a gin engine serving the fact routes under /v1 plus
// /health and /metrics.
func NewRouter(handlers *Handlers, serviceName string, opts ...RouterOption) *gin.Engine {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	router := gin.New()
	router.UseRawPath = true
	router.Use(gin.Recovery(), otelgin.Middleware(serviceName), requestMetrics())
	if o.limiter != nil {
		router.Use(rateLimit(o.limiter))
	}

	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	RegisterRoutes(router.Group("/v1"), handlers)
	return router
}
