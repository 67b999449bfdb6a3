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
	"github.com/mikkihugo/ex-llm-sub002/services/factstore"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/semver"
)

// Error codes carried in ErrorResponse.Code.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidVersion = "INVALID_VERSION"
	CodeInvalidKey     = "INVALID_KEY"
	CodeNotFound       = "NOT_FOUND"
	CodeSerialization  = "SERIALIZATION"
	CodeExportDisabled = "EXPORT_DISABLED"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternal       = "INTERNAL"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// FactResponse is one stored fact.
type FactResponse struct {
	Key  fact.Key   `json:"key"`
	Data *fact.Data `json:"data"`
}

// KeysResponse lists fact keys.
type KeysResponse struct {
	Keys  []fact.Key `json:"keys"`
	Count int        `json:"count"`
}

// VersionsResponse lists the stored versions of a tool.
type VersionsResponse struct {
	Ecosystem string   `json:"ecosystem"`
	Tool      string   `json:"tool"`
	Versions  []string `json:"versions"`
}

// LatestResponse is the highest stored version of a tool.
type LatestResponse struct {
	Ecosystem string     `json:"ecosystem"`
	Tool      string     `json:"tool"`
	Version   string     `json:"version"`
	Data      *fact.Data `json:"data"`
}

// QueryResponse holds the versions that matched a pattern or constraint.
type QueryResponse struct {
	Ecosystem  string                    `json:"ecosystem"`
	Tool       string                    `json:"tool"`
	Pattern    string                    `json:"pattern,omitempty"`
	Constraint string                    `json:"constraint,omitempty"`
	Matches    []factstore.VersionedFact `json:"matches"`
}

// FallbackResponse is the result of a fallback lookup.
type FallbackResponse struct {
	Requested string               `json:"requested"`
	Match     *semver.VersionMatch `json:"match"`
	Data      *fact.Data           `json:"data"`
}

// CompareResponse holds the facts of two versions side by side.
type CompareResponse struct {
	V1 *fact.Data `json:"v1"`
	V2 *fact.Data `json:"v2"`
}

// ExportResponse reports a full JSON export.
type ExportResponse struct {
	Exported int    `json:"exported"`
	Dir      string `json:"dir"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
