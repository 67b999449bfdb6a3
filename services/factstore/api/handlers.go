// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes a fact store over HTTP with gin.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mikkihugo/ex-llm-sub002/pkg/validation"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/semver"
)

// ServiceVersion is the fact store API version.
const ServiceVersion = "0.1.0"

// Store is the subset of *factstore.VersionedFactStorage the handlers use.
type Store interface {
	StoreFact(ctx context.Context, key fact.Key, data *fact.Data) error
	GetFact(ctx context.Context, key fact.Key) (*fact.Data, error)
	DeleteFact(ctx context.Context, key fact.Key) error
	ListTools(ctx context.Context, ecosystem string) ([]fact.Key, error)
	SearchTools(ctx context.Context, prefix string) ([]fact.Key, error)
	Stats(ctx context.Context) (*fact.Stats, error)

	GetToolVersions(ctx context.Context, ecosystem, tool string) ([]string, error)
	GetLatestVersion(ctx context.Context, ecosystem, tool string) (string, *fact.Data, bool, error)
	QueryVersions(ctx context.Context, ecosystem, tool, pattern string) ([]factstore.VersionedFact, error)
	QueryConstraint(ctx context.Context, ecosystem, tool, expr string) ([]factstore.VersionedFact, error)
	GetWithFallback(ctx context.Context, ecosystem, tool, version string) (*fact.Data, *semver.VersionMatch, error)
	CompareVersions(ctx context.Context, ecosystem, tool, v1, v2 string) (*fact.Data, *fact.Data, error)

	ExportAllToJSON(ctx context.Context) (int, error)
	ExportDir() string
}

var _ Store = (*factstore.VersionedFactStorage)(nil)

// Handlers contains the HTTP handlers for the fact store.
type Handlers struct {
	store  Store
	logger *slog.Logger
}

// NewHandlers creates handlers for store. A nil logger uses slog.Default.
func NewHandlers(store Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, logger: logger.With(slog.String("component", "factstore.api"))}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

// HandleGetFact handles GET /v1/facts/:eco/:tool/:version.
//
// Response:
//
//	200 OK: FactResponse
//	404 Not Found: No fact stored under the key
func (h *Handlers) HandleGetFact(c *gin.Context) {
	logger := h.requestLogger(c, "HandleGetFact")
	key := pathKey(c)

	data, err := h.store.GetFact(c.Request.Context(), key)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	if data == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "fact not found",
			Code:    CodeNotFound,
			Details: key.StorageKey(),
		})
		return
	}
	c.JSON(http.StatusOK, FactResponse{Key: key, Data: data})
}

// HandlePutFact handles PUT /v1/facts/:eco/:tool/:version.
//
// Description:
//
//	Stores the request body under the key named by the path, replacing
//	any previous fact. Identity fields left empty in the body are filled
//	from the path; identity fields that disagree with it are rejected.
//	A zero last_updated is set to the current time.
//
// Request Body:
//
//	fact.Data
//
// Response:
//
//	200 OK: FactResponse
//	400 Bad Request: Malformed body, invalid key or identity mismatch
//	500 Internal Server Error: Storage failure
func (h *Handlers) HandlePutFact(c *gin.Context) {
	logger := h.requestLogger(c, "HandlePutFact")
	key := pathKey(c)

	if err := validation.ValidateKey(key.Ecosystem, key.Tool, key.Version); err != nil {
		logger.Warn("Invalid key", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid key",
			Code:    CodeInvalidKey,
			Details: err.Error(),
		})
		return
	}

	var data fact.Data
	if err := c.ShouldBindJSON(&data); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    CodeInvalidRequest,
			Details: err.Error(),
		})
		return
	}
	if !fillIdentity(&data, key) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "body identity does not match path",
			Code:    CodeInvalidRequest,
			Details: key.StorageKey(),
		})
		return
	}
	if data.LastUpdated.IsZero() {
		data.LastUpdated = time.Now().UTC()
	}

	if err := h.store.StoreFact(c.Request.Context(), key, &data); err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Stored fact", "key", key.StorageKey())
	c.JSON(http.StatusOK, FactResponse{Key: key, Data: &data})
}

// fillIdentity copies key into data's empty identity fields and reports
// whether the non-empty ones agree with it.
func fillIdentity(data *fact.Data, key fact.Key) bool {
	fields := []struct {
		dst  *string
		want string
	}{
		{&data.Tool, key.Tool},
		{&data.Version, key.Version},
		{&data.Ecosystem, key.Ecosystem},
	}
	for _, f := range fields {
		if *f.dst == "" {
			*f.dst = f.want
		} else if *f.dst != f.want {
			return false
		}
	}
	return true
}

// HandleDeleteFact handles DELETE /v1/facts/:eco/:tool/:version.
//
// Response:
//
//	204 No Content: Deleted, or nothing was stored
func (h *Handlers) HandleDeleteFact(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDeleteFact")
	key := pathKey(c)

	if err := h.store.DeleteFact(c.Request.Context(), key); err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Deleted fact", "key", key.StorageKey())
	c.Status(http.StatusNoContent)
}

// HandleListEcosystem handles GET /v1/facts/:eco.
func (h *Handlers) HandleListEcosystem(c *gin.Context) {
	logger := h.requestLogger(c, "HandleListEcosystem")

	keys, err := h.store.ListTools(c.Request.Context(), c.Param("eco"))
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, KeysResponse{Keys: keys, Count: len(keys)})
}

// HandleSearch handles GET /v1/search?prefix=.
//
// The prefix is matched against encoded storage keys; "npm:next" finds
// every npm tool whose name starts with "next".
func (h *Handlers) HandleSearch(c *gin.Context) {
	logger := h.requestLogger(c, "HandleSearch")

	prefix := c.Query("prefix")
	if prefix == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "prefix is required", Code: CodeInvalidRequest})
		return
	}
	keys, err := h.store.SearchTools(c.Request.Context(), prefix)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, KeysResponse{Keys: keys, Count: len(keys)})
}

// HandleVersions handles GET /v1/facts/:eco/:tool/versions.
func (h *Handlers) HandleVersions(c *gin.Context) {
	logger := h.requestLogger(c, "HandleVersions")
	eco, tool := c.Param("eco"), c.Param("tool")

	versions, err := h.store.GetToolVersions(c.Request.Context(), eco, tool)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, VersionsResponse{Ecosystem: eco, Tool: tool, Versions: versions})
}

// HandleLatest handles GET /v1/facts/:eco/:tool/latest.
//
// Response:
//
//	200 OK: LatestResponse
//	404 Not Found: No parseable version is stored
func (h *Handlers) HandleLatest(c *gin.Context) {
	logger := h.requestLogger(c, "HandleLatest")
	eco, tool := c.Param("eco"), c.Param("tool")

	version, data, ok, err := h.store.GetLatestVersion(c.Request.Context(), eco, tool)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no versions stored", Code: CodeNotFound, Details: eco + "/" + tool})
		return
	}
	c.JSON(http.StatusOK, LatestResponse{Ecosystem: eco, Tool: tool, Version: version, Data: data})
}

// HandleQuery handles GET /v1/facts/:eco/:tool/query.
//
// Query Parameters:
//
//	pattern - "14.1.0", "14.1", "14" or "*"
//	constraint - A range such as ">=14.0.0, <15.0.0"
//
// Exactly one of the two must be given.
//
// Response:
//
//	200 OK: QueryResponse
//	400 Bad Request: Missing, ambiguous or malformed query
func (h *Handlers) HandleQuery(c *gin.Context) {
	logger := h.requestLogger(c, "HandleQuery")
	eco, tool := c.Param("eco"), c.Param("tool")
	pattern, constraint := c.Query("pattern"), c.Query("constraint")

	if (pattern == "") == (constraint == "") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "exactly one of pattern or constraint is required",
			Code:  CodeInvalidRequest,
		})
		return
	}

	var (
		matches []factstore.VersionedFact
		err     error
	)
	if pattern != "" {
		matches, err = h.store.QueryVersions(c.Request.Context(), eco, tool, pattern)
	} else {
		matches, err = h.store.QueryConstraint(c.Request.Context(), eco, tool, constraint)
	}
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, QueryResponse{
		Ecosystem:  eco,
		Tool:       tool,
		Pattern:    pattern,
		Constraint: constraint,
		Matches:    matches,
	})
}

// HandleFallback handles GET /v1/facts/:eco/:tool/fallback?version=.
//
// Response:
//
//	200 OK: FallbackResponse
//	400 Bad Request: Missing or malformed version
//	404 Not Found: Nothing in the same major line is stored
func (h *Handlers) HandleFallback(c *gin.Context) {
	logger := h.requestLogger(c, "HandleFallback")
	eco, tool := c.Param("eco"), c.Param("tool")

	version := c.Query("version")
	if version == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "version is required", Code: CodeInvalidRequest})
		return
	}

	data, match, err := h.store.GetWithFallback(c.Request.Context(), eco, tool, version)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no compatible version stored", Code: CodeNotFound, Details: version})
		return
	}
	c.JSON(http.StatusOK, FallbackResponse{Requested: version, Match: match, Data: data})
}

// HandleCompare handles GET /v1/facts/:eco/:tool/compare?v1=&v2=.
//
// Response:
//
//	200 OK: CompareResponse
//	404 Not Found: Either version is not stored
func (h *Handlers) HandleCompare(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCompare")
	eco, tool := c.Param("eco"), c.Param("tool")

	v1, v2 := c.Query("v1"), c.Query("v2")
	if v1 == "" || v2 == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "v1 and v2 are required", Code: CodeInvalidRequest})
		return
	}

	d1, d2, err := h.store.CompareVersions(c.Request.Context(), eco, tool, v1, v2)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, CompareResponse{V1: d1, V2: d2})
}

// HandleStats handles GET /v1/stats.
func (h *Handlers) HandleStats(c *gin.Context) {
	logger := h.requestLogger(c, "HandleStats")

	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleExport handles POST /v1/export.
//
// Description:
//
//	Writes every stored fact to the JSON mirror.
//
// Response:
//
//	200 OK: ExportResponse
//	409 Conflict: The store has no export directory
func (h *Handlers) HandleExport(c *gin.Context) {
	logger := h.requestLogger(c, "HandleExport")

	n, err := h.store.ExportAllToJSON(c.Request.Context())
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Exported facts", "count", n, "dir", h.store.ExportDir())
	c.JSON(http.StatusOK, ExportResponse{Exported: n, Dir: h.store.ExportDir()})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// pathKey builds the fact key named by the :eco, :tool and :version
// path parameters.
func pathKey(c *gin.Context) fact.Key {
	return fact.NewKey(c.Param("tool"), c.Param("version"), c.Param("eco"))
}

// writeError maps a store error to a status code and error code.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := http.StatusInternalServerError, CodeInternal

	switch {
	case errors.Is(err, semver.ErrInvalidVersion):
		status, code = http.StatusBadRequest, CodeInvalidVersion
	case errors.Is(err, fact.ErrInvalidKey):
		status, code = http.StatusBadRequest, CodeInvalidKey
	case errors.Is(err, factstore.ErrVersionNotFound):
		status, code = http.StatusNotFound, CodeNotFound
	case errors.Is(err, fact.ErrSerialization):
		code = CodeSerialization
	case errors.Is(err, factstore.ErrNoExportDir):
		status, code = http.StatusConflict, CodeExportDisabled
	case errors.Is(err, factstore.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, CodeUnavailable
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err, "code", code)
	} else {
		logger.Warn("Request rejected", "error", err, "code", code)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
