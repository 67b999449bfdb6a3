// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the config directory under the user's home.
	DirName = ".factstore"

	// FileName is the config file inside DirName.
	FileName = "factstore.yaml"
)

var validate = validator.New()

// DefaultPath returns ~/.factstore/factstore.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, DirName, FileName), nil
}

// Load reads the config at path, creating it with defaults on first run.
//
// Description:
//
//	Fields missing from the file keep their default values. Unknown
//	fields are rejected so that typos do not silently fall back to
//	defaults.
//
// Outputs:
//
//	FactstoreConfig - The merged configuration.
//	error - Read, parse or validation failure.
func Load(path string) (FactstoreConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Info("First run detected, creating the config", slog.String("path", path))
		if err := createDefault(path); err != nil {
			return FactstoreConfig{}, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FactstoreConfig{}, fmt.Errorf("failed to read the config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over DefaultConfig and validates the result.
func Parse(data []byte) (FactstoreConfig, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return FactstoreConfig{}, fmt.Errorf("failed to parse the config: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return FactstoreConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg FactstoreConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}

func createDefault(path string) error {
	return Save(path, DefaultConfig())
}
