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
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	badgerstore "github.com/mikkihugo/ex-llm-sub002/services/factstore/storage/badger"
)

// VersionedFactStorage is the BadgerDB-backed fact store with semantic
// version queries and an optional JSON mirror.
//
// Thread Safety: Safe for concurrent use.
type VersionedFactStorage struct {
	db     *badgerstore.DB
	cfg    Config
	logger *slog.Logger

	exportMu      sync.Mutex
	lastExportErr error

	closed atomic.Bool
}

var _ fact.Storage = (*VersionedFactStorage)(nil)

// Open validates cfg and opens the store.
//
// Description:
//
//	Creates DBPath if needed and opens BadgerDB there (or in memory).
//	ExportDir, when set, is created before Open returns.
//
// Inputs:
//
//	cfg - Store configuration. See Config.Validate for constraints.
//
// Outputs:
//
//	*VersionedFactStorage - The open store. Call Close() when done.
//	error - ErrInvalidConfig, or the backend's open error.
func Open(cfg Config) (*VersionedFactStorage, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "factstore"))

	db, err := badgerstore.Open(badgerstore.Config{
		Path:           cfg.DBPath,
		InMemory:       cfg.InMemory,
		SyncWrites:     cfg.SyncWrites,
		Logger:         logger.With(slog.String("subsystem", "badger")),
		GCInterval:     cfg.GCInterval,
		GCDiscardRatio: cfg.GCDiscardRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("open fact store: %w", err)
	}

	if cfg.ExportDir != "" {
		if err := os.MkdirAll(cfg.ExportDir, 0750); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create export dir: %w", err)
		}
	}

	logger.Info("fact store opened",
		slog.String("db_path", cfg.DBPath),
		slog.String("export_dir", cfg.ExportDir),
		slog.Bool("auto_export", cfg.AutoExport),
		slog.Bool("in_memory", cfg.InMemory),
	)

	return &VersionedFactStorage{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// OpenInMemory opens a throwaway in-memory store. exportDir may be empty,
// in which case JSON operations return ErrNoExportDir.
func OpenInMemory(exportDir string) (*VersionedFactStorage, error) {
	cfg := InMemoryConfig()
	cfg.ExportDir = exportDir
	return Open(cfg)
}

// Config returns the configuration the store was opened with.
func (s *VersionedFactStorage) Config() Config {
	return s.cfg
}

// LastExportError returns the most recent auto-export failure swallowed by
// StoreFact or DeleteFact, or nil if there has been none since Open.
func (s *VersionedFactStorage) LastExportError() error {
	s.exportMu.Lock()
	defer s.exportMu.Unlock()
	return s.lastExportErr
}

func (s *VersionedFactStorage) checkOpen() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// StoreFact inserts or replaces the fact at key.
//
// Description:
//
//	Encodes data, writes it in one atomic BadgerDB transaction and, with
//	AutoExport, mirrors it to JSON afterwards. Once the transaction has
//	committed, StoreFact returns nil even if the mirror write fails; see
//	LastExportError.
//
// Outputs:
//
//	error - ErrSerialization if data cannot be encoded, ErrClosed, or a
//	wrapped backend error. No error means the write is durable per
//	SyncWrites.
func (s *VersionedFactStorage) StoreFact(ctx context.Context, key fact.Key, data *fact.Data) (err error) {
	ctx, finish := startOp(ctx, "store", keyAttrs(key)...)
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return err
	}

	raw, err := fact.Encode(data)
	if err != nil {
		return err
	}

	if err := s.db.Set(ctx, []byte(key.StorageKey()), raw); err != nil {
		return fmt.Errorf("store fact %s: %w", key, err)
	}

	if s.cfg.AutoExport {
		if exportErr := s.ExportToJSON(ctx, key, data); exportErr != nil {
			s.reportExportError(ctx, key, exportErr)
		}
	}
	return nil
}

func (s *VersionedFactStorage) reportExportError(ctx context.Context, key fact.Key, err error) {
	exportFailuresTotal.Inc()

	s.exportMu.Lock()
	s.lastExportErr = err
	s.exportMu.Unlock()

	if s.cfg.OnExportError != nil {
		s.cfg.OnExportError(key, err)
		return
	}
	loggerWithTrace(ctx, s.logger).Warn("json mirror out of date",
		slog.String("key", key.StorageKey()),
		slog.String("error", err.Error()),
	)
}

// GetFact returns the fact at key, or (nil, nil) when absent.
func (s *VersionedFactStorage) GetFact(ctx context.Context, key fact.Key) (_ *fact.Data, err error) {
	ctx, finish := startOp(ctx, "get", keyAttrs(key)...)
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.get(ctx, key)
}

func (s *VersionedFactStorage) get(ctx context.Context, key fact.Key) (*fact.Data, error) {
	raw, found, err := s.db.Get(ctx, []byte(key.StorageKey()))
	if err != nil {
		return nil, fmt.Errorf("get fact %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	data, err := fact.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("fact %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a fact is stored at key.
func (s *VersionedFactStorage) Exists(ctx context.Context, key fact.Key) (_ bool, err error) {
	ctx, finish := startOp(ctx, "exists", keyAttrs(key)...)
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return false, err
	}
	ok, err := s.db.Has(ctx, []byte(key.StorageKey()))
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", key, err)
	}
	return ok, nil
}

// DeleteFact removes the fact at key. Removing an absent key succeeds.
//
// With AutoExport the JSON mirror file is removed as well; failing to
// remove it is handled like a failed mirror write.
func (s *VersionedFactStorage) DeleteFact(ctx context.Context, key fact.Key) (err error) {
	ctx, finish := startOp(ctx, "delete", keyAttrs(key)...)
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.Delete(ctx, []byte(key.StorageKey())); err != nil {
		return fmt.Errorf("delete fact %s: %w", key, err)
	}

	if s.cfg.AutoExport && s.cfg.ExportDir != "" {
		if rmErr := s.removeJSON(key); rmErr != nil {
			s.reportExportError(ctx, key, rmErr)
		}
	}
	return nil
}

func (s *VersionedFactStorage) removeJSON(key fact.Key) error {
	path, err := key.ExportPath(s.cfg.ExportDir)
	if err != nil {
		return &ExportError{Key: key, Err: err}
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &ExportError{Key: key, Path: path, Err: err}
	}
	return nil
}

// ListTools returns every key in ecosystem in storage-key order.
func (s *VersionedFactStorage) ListTools(ctx context.Context, ecosystem string) (_ []fact.Key, err error) {
	ctx, finish := startOp(ctx, "list", attribute.String("fact.ecosystem", ecosystem))
	defer func() { finish(err) }()

	return s.scanKeys(ctx, fact.EcosystemPrefix(ecosystem))
}

// SearchTools returns every key whose storage form starts with prefix.
// Prefixes not starting with "fact:" are taken relative to it.
func (s *VersionedFactStorage) SearchTools(ctx context.Context, prefix string) (_ []fact.Key, err error) {
	ctx, finish := startOp(ctx, "search", attribute.String("prefix", prefix))
	defer func() { finish(err) }()

	return s.scanKeys(ctx, fact.SearchPrefix(prefix))
}

// SearchByTags always returns an empty result; there is no tag index.
func (s *VersionedFactStorage) SearchByTags(ctx context.Context, tags []string) ([]fact.Key, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return []fact.Key{}, nil
}

// scanKeys decodes every key under prefix. Keys that are not valid fact
// keys (written by something else) are skipped.
func (s *VersionedFactStorage) scanKeys(ctx context.Context, prefix string) ([]fact.Key, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	keys := []fact.Key{}
	err := s.db.ScanPrefix(ctx, []byte(prefix), false, func(k, _ []byte) error {
		key, err := fact.ParseStorageKey(string(k))
		if err != nil {
			s.logger.Debug("skipping foreign key", slog.String("key", string(k)))
			return nil
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return keys, nil
}

// Stats scans the store and aggregates entry counts and payload sizes.
func (s *VersionedFactStorage) Stats(ctx context.Context) (_ *fact.Stats, err error) {
	ctx, finish := startOp(ctx, "stats")
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	stats := fact.NewStats()
	prefix := []byte(fact.Namespace + fact.Delimiter)
	err = s.db.ScanSizes(ctx, prefix, func(k []byte, size int64) error {
		key, err := fact.ParseStorageKey(string(k))
		if err != nil {
			return nil
		}
		stats.Add(key.Ecosystem, int(size))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	if lsm, vlog := s.db.SizeOnDisk(); lsm+vlog > 0 {
		stats.DiskSizeBytes = uint64(lsm + vlog)
	}
	if at, ok := s.db.LastCompaction(); ok {
		stats.LastCompaction = &at
	}
	return stats, nil
}

// GetAllFacts returns every stored fact in storage-key order.
//
// A payload that fails to decode aborts the scan with ErrSerialization.
func (s *VersionedFactStorage) GetAllFacts(ctx context.Context) (_ []fact.Entry, err error) {
	ctx, finish := startOp(ctx, "get_all")
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return s.scanEntries(ctx, fact.Namespace+fact.Delimiter)
}

func (s *VersionedFactStorage) scanEntries(ctx context.Context, prefix string) ([]fact.Entry, error) {
	entries := []fact.Entry{}
	err := s.db.ScanPrefix(ctx, []byte(prefix), true, func(k, v []byte) error {
		key, err := fact.ParseStorageKey(string(k))
		if err != nil {
			return nil
		}
		data, err := fact.Decode(v)
		if err != nil {
			return fmt.Errorf("fact %s: %w", key, err)
		}
		entries = append(entries, fact.Entry{Key: key, Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", prefix, err)
	}
	return entries, nil
}

// Compact flattens the database and reclaims value-log space. The time
// is reported as Stats.LastCompaction.
func (s *VersionedFactStorage) Compact(ctx context.Context) (err error) {
	ctx, finish := startOp(ctx, "compact")
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.db.Compact(ctx, s.cfg.GCDiscardRatio); err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	s.logger.Info("fact store compacted")
	return nil
}

// Close releases the database. Calls after the first return nil.
func (s *VersionedFactStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close fact store: %w", err)
	}
	s.logger.Info("fact store closed")
	return nil
}
