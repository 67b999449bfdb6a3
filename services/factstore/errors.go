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
	"errors"
	"fmt"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrVersionNotFound is matched by *VersionNotFoundError.
	ErrVersionNotFound = errors.New("version not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("fact store is closed")

	// ErrNoExportDir is returned by JSON operations when no export
	// directory is configured.
	ErrNoExportDir = errors.New("export directory not configured")

	// ErrExport is matched by *ExportError.
	ErrExport = errors.New("json export failed")

	// ErrInvalidConfig is matched by every Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid fact store config")
)

// VersionNotFoundError reports a version required by CompareVersions that
// is not stored.
type VersionNotFoundError struct {
	Ecosystem string
	Tool      string
	Version   string
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("version %s of %s/%s not found", e.Version, e.Ecosystem, e.Tool)
}

// Is reports whether target is ErrVersionNotFound.
func (e *VersionNotFoundError) Is(target error) bool {
	return target == ErrVersionNotFound
}

// ExportError describes a JSON mirror write or read that failed.
type ExportError struct {
	Key  fact.Key
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("export %s to %s: %v", e.Key, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrExport.
func (e *ExportError) Is(target error) bool {
	return target == ErrExport
}
