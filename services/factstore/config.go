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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

const (
	// AppDirName is the directory under the user cache dir holding all stores.
	AppDirName = "sparc-engine"

	// GlobalScope is the scope directory of the shared store.
	GlobalScope = "global"

	// DBFileName is the database directory name inside a scope.
	DBFileName = "tech_knowledge.db"

	// ExportDirName is the JSON mirror directory name inside a scope.
	ExportDirName = "knowledge"
)

var configValidate = validator.New()

// ExportErrorHandler receives JSON mirror failures that StoreFact
// swallowed. It runs synchronously on the writer's goroutine.
type ExportErrorHandler func(key fact.Key, err error)

// Config configures a VersionedFactStorage.
type Config struct {
	// DBPath is the BadgerDB directory. Required unless InMemory.
	DBPath string `yaml:"db_path" validate:"required_without=InMemory"`

	// ExportDir is the root of the JSON mirror. Required unless InMemory.
	ExportDir string `yaml:"export_dir" validate:"required_without=InMemory"`

	// AutoExport mirrors every StoreFact to JSON.
	AutoExport bool `yaml:"auto_export"`

	// InMemory keeps the database in RAM. Intended for tests.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs each commit.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is the value-log GC period. Zero disables it.
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`

	// GCDiscardRatio is the value-log GC threshold (0.0-1.0).
	GCDiscardRatio float64 `yaml:"gc_discard_ratio" validate:"gte=0,lte=1"`

	// ExportConcurrency bounds parallel file writes in ExportAllToJSON.
	ExportConcurrency int `yaml:"export_concurrency" validate:"gte=1,lte=256"`

	// Logger for store operations. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-" validate:"-"`

	// OnExportError overrides the default warning log for swallowed
	// auto-export failures.
	OnExportError ExportErrorHandler `yaml:"-" validate:"-"`
}

// DefaultConfig returns production defaults with no paths set.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
		ExportConcurrency: 8,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	cfg := DefaultConfig()
	cfg.InMemory = true
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	return cfg
}

// Validate checks field constraints.
//
// Outputs:
//
//	error - Wraps ErrInvalidConfig with the failing fields, or nil.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Option adjusts a Config built by OpenGlobal or OpenForProject.
type Option func(*Config)

// WithAutoExport enables or disables the JSON mirror on writes.
func WithAutoExport(enabled bool) Option {
	return func(c *Config) { c.AutoExport = enabled }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithExportErrorHandler sets Config.OnExportError.
func WithExportErrorHandler(h ExportErrorHandler) Option {
	return func(c *Config) { c.OnExportError = h }
}

// WithBaseDir replaces the user cache directory as the root of scoped
// stores.
func WithBaseDir(dir string) Option {
	return func(c *Config) {
		c.DBPath = rebase(c.DBPath, dir)
		c.ExportDir = rebase(c.ExportDir, dir)
	}
}

// rebase keeps the last two elements ({scope}/{name}) of p under dir.
func rebase(p, dir string) string {
	name := filepath.Base(p)
	scope := filepath.Base(filepath.Dir(p))
	return filepath.Join(dir, AppDirName, scope, name)
}

// GlobalConfig returns the configuration of the shared store under the
// user cache directory.
func GlobalConfig(opts ...Option) (Config, error) {
	return scopedConfig(GlobalScope, opts...)
}

// ProjectConfig returns the configuration of a per-project store.
//
// Inputs:
//
//	projectID - Scope name. Must be a single, non-empty path element.
func ProjectConfig(projectID string, opts ...Option) (Config, error) {
	if projectID == "" || projectID == "." || projectID == ".." ||
		strings.ContainsAny(projectID, `/\`) {
		return Config{}, fmt.Errorf("%w: project id %q is not a single path element", ErrInvalidConfig, projectID)
	}
	return scopedConfig(projectID, opts...)
}

func scopedConfig(scope string, opts ...Option) (Config, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return Config{}, fmt.Errorf("locate user cache dir: %w", err)
	}

	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(base, AppDirName, scope, DBFileName)
	cfg.ExportDir = filepath.Join(base, AppDirName, scope, ExportDirName)
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, nil
}

// OpenGlobal opens the shared store at
// {UserCacheDir}/sparc-engine/global/{tech_knowledge.db,knowledge/}.
func OpenGlobal(opts ...Option) (*VersionedFactStorage, error) {
	cfg, err := GlobalConfig(opts...)
	if err != nil {
		return nil, err
	}
	return Open(cfg)
}

// OpenForProject opens the store of one project at
// {UserCacheDir}/sparc-engine/{projectID}/{tech_knowledge.db,knowledge/}.
func OpenForProject(projectID string, opts ...Option) (*VersionedFactStorage, error) {
	cfg, err := ProjectConfig(projectID, opts...)
	if err != nil {
		return nil, err
	}
	return Open(cfg)
}
