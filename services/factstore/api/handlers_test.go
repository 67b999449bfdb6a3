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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/semver"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func newTestStore(t *testing.T) *factstore.VersionedFactStorage {
	t.Helper()
	s, err := factstore.OpenInMemory(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func setupTestRouter(store Store) *gin.Engine {
	return NewRouter(NewHandlers(store, nil), "factstore-test")
}

func seed(t *testing.T, s *factstore.VersionedFactStorage, tool, ecosystem string, versions ...string) {
	t.Helper()
	for _, v := range versions {
		d := &fact.Data{
			Tool:          tool,
			Version:       v,
			Ecosystem:     ecosystem,
			Documentation: tool + " " + v,
			LastUpdated:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.StoreFact(context.Background(), fact.NewKey(tool, v, ecosystem), d))
	}
}

func do(t *testing.T, router http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// -----------------------------------------------------------------------------
// Fact CRUD
// -----------------------------------------------------------------------------

func TestHandlers_PutGetDelete(t *testing.T) {
	store := newTestStore(t)
	router := setupTestRouter(store)

	body := `{"documentation":"App Router docs","tags":["react"]}`
	w := do(t, router, http.MethodPut, "/v1/facts/npm/nextjs/14.1.0", bytes.NewBufferString(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	put := decode[FactResponse](t, w)
	assert.Equal(t, fact.NewKey("nextjs", "14.1.0", "npm"), put.Key)
	assert.Equal(t, "nextjs", put.Data.Tool, "identity filled from path")
	assert.False(t, put.Data.LastUpdated.IsZero())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/14.1.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[FactResponse](t, w)
	assert.Equal(t, "App Router docs", got.Data.Documentation)
	assert.Equal(t, []string{"react"}, got.Data.Tags)

	w = do(t, router, http.MethodDelete, "/v1/facts/npm/nextjs/14.1.0", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/14.1.0", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, w).Code)
}

func TestHandlers_PutRejectsBadBodies(t *testing.T) {
	router := setupTestRouter(newTestStore(t))

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"tool":`},
		{"identity mismatch", `{"tool":"react"}`},
		{"version mismatch", `{"version":"15.0.0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPut, "/v1/facts/npm/nextjs/14.1.0", bytes.NewBufferString(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandlers_PutRejectsInvalidKey(t *testing.T) {
	router := setupTestRouter(newTestStore(t))

	w := do(t, router, http.MethodPut, "/v1/facts/npm/react/18.2.0%20", bytes.NewBufferString(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidKey, decode[ErrorResponse](t, w).Code)
}

func TestHandlers_EscapedToolName(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "@next/font", "npm", "14.0.0")
	router := setupTestRouter(store)

	w := do(t, router, http.MethodGet, "/v1/facts/npm/@next%2Ffont/14.0.0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "@next/font", decode[FactResponse](t, w).Data.Tool)
}

func TestHandlers_ListAndSearch(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "nextjs", "npm", "14.0.0", "14.1.0")
	seed(t, store, "nextjs-auth", "npm", "1.0.0")
	seed(t, store, "serde", "cargo", "1.0.0")
	router := setupTestRouter(store)

	w := do(t, router, http.MethodGet, "/v1/facts/npm", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[KeysResponse](t, w).Count)

	w = do(t, router, http.MethodGet, "/v1/facts/pip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[KeysResponse](t, w).Count)

	w = do(t, router, http.MethodGet, "/v1/search?prefix=npm:nextjs:", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[KeysResponse](t, w).Count)

	w = do(t, router, http.MethodGet, "/v1/search", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// -----------------------------------------------------------------------------
// Version queries
// -----------------------------------------------------------------------------

func TestHandlers_VersionsAndLatest(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "nextjs", "npm", "14.0.0", "14.10.0", "14.2.0")
	router := setupTestRouter(store)

	w := do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/versions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.ElementsMatch(t, []string{"14.0.0", "14.10.0", "14.2.0"}, decode[VersionsResponse](t, w).Versions)

	w = do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	latest := decode[LatestResponse](t, w)
	assert.Equal(t, "14.10.0", latest.Version)
	assert.Equal(t, "nextjs 14.10.0", latest.Data.Documentation)

	w = do(t, router, http.MethodGet, "/v1/facts/npm/unknown/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_Query(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "nextjs", "npm", "13.5.0", "14.0.0", "14.1.0", "14.1.5")
	router := setupTestRouter(store)

	tests := []struct {
		name     string
		query    string
		status   int
		versions []string
	}{
		{"minor pattern", "pattern=14.1", http.StatusOK, []string{"14.1.0", "14.1.5"}},
		{"major pattern", "pattern=14", http.StatusOK, []string{"14.0.0", "14.1.0", "14.1.5"}},
		{"any", "pattern=*", http.StatusOK, []string{"13.5.0", "14.0.0", "14.1.0", "14.1.5"}},
		{"constraint", "constraint=>=14.1.0", http.StatusOK, []string{"14.1.0", "14.1.5"}},
		{"bad pattern", "pattern=latest", http.StatusBadRequest, nil},
		{"neither", "", http.StatusBadRequest, nil},
		{"both", "pattern=14&constraint=^14", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/query?"+tt.query, nil)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var got []string
			for _, m := range decode[QueryResponse](t, w).Matches {
				got = append(got, m.Version)
			}
			assert.Equal(t, tt.versions, got)
		})
	}
}

func TestHandlers_Fallback(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "nextjs", "npm", "14.0.0", "14.1.0", "14.1.5", "14.2.0")
	router := setupTestRouter(store)

	w := do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/fallback?version=14.1.3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[FallbackResponse](t, w)
	require.NotNil(t, resp.Match)
	assert.Equal(t, "14.1.5", resp.Match.Version)
	assert.Equal(t, uint8(2), resp.Match.Specificity)
	assert.False(t, resp.Match.IsExact)

	w = do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/fallback?version=15.0.0", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/fallback?version=next", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidVersion, decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/fallback", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_Compare(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "nextjs", "npm", "13.0.0", "14.0.0")
	router := setupTestRouter(store)

	w := do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/compare?v1=13.0.0&v2=14.0.0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CompareResponse](t, w)
	assert.Equal(t, "13.0.0", resp.V1.Version)
	assert.Equal(t, "14.0.0", resp.V2.Version)

	w = do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/compare?v1=13.0.0&v2=15.0.0", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, w).Code)
}

// -----------------------------------------------------------------------------
// Store endpoints
// -----------------------------------------------------------------------------

func TestHandlers_StatsAndExport(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, "nextjs", "npm", "14.0.0")
	seed(t, store, "serde", "cargo", "1.0.0")
	router := setupTestRouter(store)

	w := do(t, router, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[fact.Stats](t, w)
	assert.Equal(t, uint64(2), stats.TotalEntries)
	assert.Equal(t, map[string]uint64{"cargo": 1, "npm": 1}, stats.Ecosystems)

	w = do(t, router, http.MethodPost, "/v1/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	exp := decode[ExportResponse](t, w)
	assert.Equal(t, 2, exp.Exported)
	assert.FileExists(t, filepath.Join(exp.Dir, "npm", "nextjs", "14.0.0.json"))
}

func TestHandlers_ExportWithoutDir(t *testing.T) {
	s, err := factstore.OpenInMemory("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	w := do(t, setupTestRouter(s), http.MethodPost, "/v1/export", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, CodeExportDisabled, decode[ErrorResponse](t, w).Code)
}

func TestHandlers_HealthAndMetrics(t *testing.T) {
	router := setupTestRouter(newTestStore(t))

	w := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthResponse{Status: "healthy", Version: ServiceVersion}, decode[HealthResponse](t, w))

	w = do(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "factstore_http_requests_total")
}

// -----------------------------------------------------------------------------
// Error mapping
// -----------------------------------------------------------------------------

// failingStore returns err from GetFact. Other methods are not called.
type failingStore struct {
	Store
	err error
}

func (f failingStore) GetFact(context.Context, fact.Key) (*fact.Data, error) {
	return nil, f.err
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid version", &semver.VersionError{Input: "x", Reason: "bad"}, http.StatusBadRequest, CodeInvalidVersion},
		{"invalid key", &fact.KeyError{Input: "x", Reason: "bad"}, http.StatusBadRequest, CodeInvalidKey},
		{"not found", &factstore.VersionNotFoundError{Ecosystem: "npm", Tool: "t", Version: "1"}, http.StatusNotFound, CodeNotFound},
		{"serialization", &fact.CodecError{Op: "decode", Err: errors.New("crc mismatch")}, http.StatusInternalServerError, CodeSerialization},
		{"closed", factstore.ErrClosed, http.StatusServiceUnavailable, CodeUnavailable},
		{"other", errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(failingStore{err: tt.err})
			w := do(t, router, http.MethodGet, "/v1/facts/npm/nextjs/14.0.0", nil)
			assert.Equal(t, tt.status, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestRouter_RateLimit(t *testing.T) {
	router := NewRouter(NewHandlers(newTestStore(t), nil), "factstore-test", WithRateLimit(0.001, 2))

	for i := 0; i < 2; i++ {
		w := do(t, router, http.MethodGet, "/v1/stats", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(t, router, http.MethodGet, "/v1/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, CodeRateLimited, decode[ErrorResponse](t, w).Code)

	w = do(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health is exempt")
}
