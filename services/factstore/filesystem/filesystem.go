// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package filesystem implements fact.Storage as a directory tree with one
// binary file per fact: {root}/{ecosystem}/{tool}/{version}.bin.
//
// It needs no database and is easy to inspect or rsync, at the cost of a
// directory walk for every listing. Writes are serialized inside the
// process and replace files atomically.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/internal/atomicfile"
)

// FileExt is the extension of fact files.
const FileExt = ".bin"

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("filesystem fact storage is closed")

// Storage is a fact.Storage backed by plain files.
//
// Thread Safety: Safe for concurrent use within one process.
type Storage struct {
	root   string
	logger *slog.Logger

	writeMu sync.Mutex
	closed  atomic.Bool
}

var _ fact.Storage = (*Storage)(nil)

// New creates root if needed and returns a storage rooted there.
func New(root string, logger *slog.Logger) (*Storage, error) {
	if root == "" {
		return nil, errors.New("root directory is required")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create facts directory %s: %w", root, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "factstore.filesystem"))
	logger.Info("filesystem fact storage opened", slog.String("root", root))

	return &Storage{root: root, logger: logger}, nil
}

// Root returns the storage directory.
func (s *Storage) Root() string {
	return s.root
}

func (s *Storage) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *Storage) path(key fact.Key) (string, error) {
	return key.FilePath(s.root, FileExt)
}

// StoreFact writes key's file, replacing any previous content atomically.
func (s *Storage) StoreFact(ctx context.Context, key fact.Key, data *fact.Data) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}
	raw, err := fact.Encode(data)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := atomicfile.WriteFile(path, raw, 0640); err != nil {
		return fmt.Errorf("store fact %s: %w", key, err)
	}
	s.logger.Debug("stored fact", slog.String("key", key.StorageKey()), slog.String("path", path))
	return nil
}

// GetFact reads key's file, or returns (nil, nil) when it does not exist.
func (s *Storage) GetFact(ctx context.Context, key fact.Key) (*fact.Data, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read fact %s: %w", key, err)
	}
	data, err := fact.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("fact %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether key's file exists.
func (s *Storage) Exists(ctx context.Context, key fact.Key) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat fact %s: %w", key, err)
	}
	return true, nil
}

// DeleteFact removes key's file. A missing file is not an error.
func (s *Storage) DeleteFact(ctx context.Context, key fact.Key) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete fact %s: %w", key, err)
	}
	return nil
}

// walk visits every fact file under dir, in lexical path order.
func (s *Storage) walk(ctx context.Context, dir string, fn func(key fact.Key, path string, d fs.DirEntry) error) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir && errors.Is(walkErr, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, FileExt) || atomicfile.IsTemp(path) {
			return nil
		}
		key, err := fact.KeyFromFilePath(s.root, path, FileExt)
		if err != nil {
			s.logger.Debug("skipping unrecognized file", slog.String("path", path))
			return nil
		}
		return fn(key, path, d)
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}
	return nil
}

// collect returns every key under dir whose storage form has prefix,
// sorted by storage key so results match the badger backend.
func (s *Storage) collect(ctx context.Context, dir, prefix string) ([]fact.Key, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	keys := []fact.Key{}
	err := s.walk(ctx, dir, func(key fact.Key, _ string, _ fs.DirEntry) error {
		if strings.HasPrefix(key.StorageKey(), prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].StorageKey() < keys[j].StorageKey() })
	return keys, nil
}

// ListTools returns every key in ecosystem.
func (s *Storage) ListTools(ctx context.Context, ecosystem string) ([]fact.Key, error) {
	dir, err := s.ecosystemDir(ecosystem)
	if err != nil {
		return []fact.Key{}, nil
	}
	return s.collect(ctx, dir, fact.EcosystemPrefix(ecosystem))
}

// ecosystemDir returns the directory holding one ecosystem. Names that
// cannot be a directory hold nothing.
func (s *Storage) ecosystemDir(ecosystem string) (string, error) {
	p, err := fact.NewKey("x", "x", ecosystem).FilePath(s.root, FileExt)
	if err != nil {
		return "", err
	}
	return filepath.Dir(filepath.Dir(p)), nil
}

// SearchTools returns every key whose storage form starts with prefix.
func (s *Storage) SearchTools(ctx context.Context, prefix string) ([]fact.Key, error) {
	return s.collect(ctx, s.root, fact.SearchPrefix(prefix))
}

// SearchByTags always returns an empty result; there is no tag index.
func (s *Storage) SearchByTags(ctx context.Context, tags []string) ([]fact.Key, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return []fact.Key{}, nil
}

// Stats walks the tree and sums file sizes. LastCompaction is always nil.
func (s *Storage) Stats(ctx context.Context) (*fact.Stats, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	stats := fact.NewStats()
	err := s.walk(ctx, s.root, func(key fact.Key, _ string, d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.Add(key.Ecosystem, int(info.Size()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// GetAllFacts reads and decodes every fact file, sorted by storage key.
func (s *Storage) GetAllFacts(ctx context.Context) ([]fact.Entry, error) {
	keys, err := s.collect(ctx, s.root, fact.Namespace+fact.Delimiter)
	if err != nil {
		return nil, err
	}
	entries := make([]fact.Entry, 0, len(keys))
	for _, key := range keys {
		data, err := s.GetFact(ctx, key)
		if err != nil {
			return nil, err
		}
		if data == nil {
			// Deleted between the walk and the read.
			continue
		}
		entries = append(entries, fact.Entry{Key: key, Data: data})
	}
	return entries, nil
}

// Close marks the storage closed. There is nothing to release.
func (s *Storage) Close() error {
	s.closed.Store(true)
	return nil
}
