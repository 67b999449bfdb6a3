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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/internal/atomicfile"
)

const exportFileMode = 0640

// ExportDir returns the JSON mirror root, or "" when none is configured.
func (s *VersionedFactStorage) ExportDir() string {
	return s.cfg.ExportDir
}

// ExportPath returns where key's JSON mirror lives.
func (s *VersionedFactStorage) ExportPath(key fact.Key) (string, error) {
	if s.cfg.ExportDir == "" {
		return "", ErrNoExportDir
	}
	return key.ExportPath(s.cfg.ExportDir)
}

// ExportToJSON writes data to {ExportDir}/{ecosystem}/{tool}/{version}.json.
//
// Description:
//
//	The file is pretty-printed with two-space indentation and a trailing
//	newline, and replaced atomically so readers never see a partial file.
//	The primary store is not touched.
//
// Outputs:
//
//	error - ErrNoExportDir, or *ExportError (errors.Is ErrExport) wrapping
//	the key, encode or file system failure.
func (s *VersionedFactStorage) ExportToJSON(ctx context.Context, key fact.Key, data *fact.Data) (err error) {
	_, finish := startOp(ctx, "export", keyAttrs(key)...)
	defer func() { finish(err) }()

	return s.writeJSON(key, data)
}

func (s *VersionedFactStorage) writeJSON(key fact.Key, data *fact.Data) error {
	path, err := s.ExportPath(key)
	if err != nil {
		if errors.Is(err, ErrNoExportDir) {
			return err
		}
		return &ExportError{Key: key, Err: err}
	}

	raw, err := fact.MarshalJSON(data)
	if err != nil {
		return &ExportError{Key: key, Path: path, Err: err}
	}

	if err := atomicfile.WriteFile(path, raw, exportFileMode); err != nil {
		return &ExportError{Key: key, Path: path, Err: err}
	}
	exportedFilesTotal.Inc()
	return nil
}

// ImportFromJSON reads key's JSON mirror.
//
// Outputs:
//
//	*fact.Data - The decoded fact, or nil when the file does not exist.
//	error - ErrNoExportDir, or *ExportError for read or decode failures
//	(decode failures also match ErrSerialization).
func (s *VersionedFactStorage) ImportFromJSON(ctx context.Context, key fact.Key) (_ *fact.Data, err error) {
	_, finish := startOp(ctx, "import", keyAttrs(key)...)
	defer func() { finish(err) }()

	path, err := s.ExportPath(key)
	if err != nil {
		if errors.Is(err, ErrNoExportDir) {
			return nil, err
		}
		return nil, &ExportError{Key: key, Err: err}
	}
	return readJSON(key, path)
}

func readJSON(key fact.Key, path string) (*fact.Data, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &ExportError{Key: key, Path: path, Err: err}
	}
	data, err := fact.UnmarshalJSON(raw)
	if err != nil {
		return nil, &ExportError{Key: key, Path: path, Err: err}
	}
	return data, nil
}

// ExportAllToJSON writes the JSON mirror of every stored fact.
//
// Description:
//
//	Reads all facts from one snapshot, then writes files with at most
//	ExportConcurrency writers. The first failure cancels the remaining
//	writes. Cancelling ctx stops the export early.
//
// Outputs:
//
//	int - Number of files written before returning.
//	error - The first failure, or nil.
func (s *VersionedFactStorage) ExportAllToJSON(ctx context.Context) (_ int, err error) {
	ctx, finish := startOp(ctx, "export_all")
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	if s.cfg.ExportDir == "" {
		return 0, ErrNoExportDir
	}

	entries, err := s.scanEntries(ctx, fact.Namespace+fact.Delimiter)
	if err != nil {
		return 0, err
	}

	limit := s.cfg.ExportConcurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	written := make([]bool, len(entries))
	for i, e := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.writeJSON(e.Key, e.Data); err != nil {
				return err
			}
			written[i] = true
			return nil
		})
	}
	err = g.Wait()

	count := 0
	for _, ok := range written {
		if ok {
			count++
		}
	}
	if err == nil {
		err = ctx.Err()
	}

	loggerWithTrace(ctx, s.logger).Info("exported facts to json",
		slog.Int("count", count),
		slog.Int("total", len(entries)),
		slog.String("export_dir", s.cfg.ExportDir),
	)
	if err != nil {
		return count, fmt.Errorf("export all: %w", err)
	}
	return count, nil
}

// ImportAllFromJSON loads every {ecosystem}/{tool}/{version}.json file
// under ExportDir into the primary store, replacing stored facts.
//
// Description:
//
//	Used to rebuild a database from a checked-out export tree. Files
//	whose path does not map to a key are skipped with a warning; a file
//	that cannot be read or decoded aborts the import. Imported facts are
//	not re-exported.
//
// Outputs:
//
//	int - Number of facts written before returning.
//	error - The first failure, or nil.
func (s *VersionedFactStorage) ImportAllFromJSON(ctx context.Context) (_ int, err error) {
	ctx, finish := startOp(ctx, "import_all", attribute.String("export_dir", s.cfg.ExportDir))
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	root := s.cfg.ExportDir
	if root == "" {
		return 0, ErrNoExportDir
	}

	count := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root && errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") || atomicfile.IsTemp(path) {
			return nil
		}

		key, err := fact.KeyFromExportPath(root, path)
		if err != nil {
			s.logger.Warn("skipping unrecognized export file", slog.String("path", path))
			return nil
		}
		if _, err := s.ImportFile(ctx, key, path); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("import all: %w", err)
	}

	loggerWithTrace(ctx, s.logger).Info("imported facts from json",
		slog.Int("count", count),
		slog.String("export_dir", root),
	)
	return count, nil
}

// ImportFile reads one JSON file and stores it at key without re-exporting.
// It returns the imported data, or nil when the file no longer exists.
func (s *VersionedFactStorage) ImportFile(ctx context.Context, key fact.Key, path string) (*fact.Data, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	data, err := readJSON(key, path)
	if err != nil || data == nil {
		return nil, err
	}

	raw, err := fact.Encode(data)
	if err != nil {
		return nil, &ExportError{Key: key, Path: path, Err: err}
	}
	if err := s.db.Set(ctx, []byte(key.StorageKey()), raw); err != nil {
		return nil, fmt.Errorf("store fact %s: %w", key, err)
	}
	return data, nil
}
