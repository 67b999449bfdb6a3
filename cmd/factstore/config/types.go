// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the factstore CLI configuration file.
package config

import "time"

// Scopes a store can be opened in.
const (
	ScopeGlobal  = "global"
	ScopeProject = "project"
)

// FactstoreConfig is the root of factstore.yaml.
type FactstoreConfig struct {
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Server  ServerConfig  `yaml:"server"`
}

// StoreConfig selects and tunes the fact store.
//
// Explicit paths win over the scope: DBPath and ExportDir, when set,
// are used as is. Otherwise the scope picks the standard layout under
// BaseDir (or the user cache directory).
type StoreConfig struct {
	Scope   string `yaml:"scope" validate:"omitempty,oneof=global project"`
	Project string `yaml:"project,omitempty" validate:"required_if=Scope project"`
	BaseDir string `yaml:"base_dir,omitempty"`

	DBPath    string `yaml:"db_path,omitempty"`
	ExportDir string `yaml:"export_dir,omitempty"`

	AutoExport        bool          `yaml:"auto_export"`
	SyncWrites        bool          `yaml:"sync_writes"`
	GCInterval        time.Duration `yaml:"gc_interval" validate:"gte=0"`
	ExportConcurrency int           `yaml:"export_concurrency" validate:"gte=0,lte=256"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures `factstore serve`.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"omitempty,hostname_port"`

	// OTLPEndpoint enables OTLP/gRPC trace export when set.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`

	// TraceStdout prints spans to stdout. Ignored when OTLPEndpoint is set.
	TraceStdout bool `yaml:"trace_stdout,omitempty"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// RateLimit is the request rate cap per second. Zero disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() FactstoreConfig {
	return FactstoreConfig{
		Store: StoreConfig{
			Scope:             ScopeGlobal,
			SyncWrites:        true,
			GCInterval:        5 * time.Minute,
			ExportConcurrency: 8,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8088",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
