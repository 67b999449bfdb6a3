// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages the BadgerDB instance that backs the
// fact store.
//
// BadgerDB provides what the fact store relies on:
//   - Snapshot-isolated read transactions that never block writers
//   - Serialized, atomically committed write transactions
//   - Keys kept in byte order, so a string prefix is a contiguous range
//
// The package adds lifecycle management (periodic value-log GC, explicit
// compaction with a recorded timestamp) and small helpers for the
// transaction and prefix-scan patterns the fact store uses everywhere.
//
// A database directory may be opened by one process at a time; BadgerDB's
// directory lock rejects a second writer process.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrClosed is returned by helpers called after Close.
var ErrClosed = errors.New("badger database is closed")

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the database directory. Created if missing.
	// Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Intended for tests.
	InMemory bool

	// SyncWrites fsyncs every commit before returning.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables the background runner.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before GC rewrites
	// a value log file (0.0-1.0).
	GCDiscardRatio float64
}

// DefaultConfig returns durable production settings.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns settings for tests: no disk, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:       true,
		GCDiscardRatio: 0.5,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func options(cfg Config) (badger.Options, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return badger.Options{}, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return badger.Options{}, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// One version per key: facts are upserted, never time-travelled.
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	return opts, nil
}

// DB wraps a BadgerDB instance with lifecycle management.
type DB struct {
	db       *badger.DB
	gcRunner *GCRunner
	path     string
	inMemory bool
	logger   *slog.Logger

	// lastCompaction holds unix nanoseconds of the last successful GC or
	// Compact call; zero means never.
	lastCompaction atomic.Int64
	closed         atomic.Bool
}

// Open opens a BadgerDB and starts the GC runner if configured.
//
// Description:
//
//	Opens the database at cfg.Path (or in memory), then, when
//	GCInterval > 0 and the database is on disk, starts a background
//	runner that periodically reclaims value-log space.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*DB - The managed database. Call Close() when done.
//	error - Non-nil if the path is invalid, locked or unreadable.
//
// Thread Safety: The returned *DB is safe for concurrent use.
func Open(cfg Config) (*DB, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	d := &DB{
		db:       bdb,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
		logger:   logger,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(d, cfg.GCInterval, cfg.GCDiscardRatio)
		if err != nil {
			bdb.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		d.gcRunner = runner
		runner.Start()
	}

	return d, nil
}

// OpenInMemory opens an in-memory database for tests.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// Close stops the GC runner and closes the database.
// Calls after the first return nil.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	if d.gcRunner != nil {
		d.gcRunner.Stop()
	}
	return d.db.Close()
}

// Path returns the database directory, or "" when in memory.
func (d *DB) Path() string {
	return d.path
}

// InMemory reports whether the database lives only in RAM.
func (d *DB) InMemory() bool {
	return d.inMemory
}

// Sync flushes pending writes to disk. No-op in memory.
func (d *DB) Sync() error {
	if d.inMemory {
		return nil
	}
	return d.db.Sync()
}

func (d *DB) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if d.closed.Load() {
		return ErrClosed
	}
	return nil
}

// WithTxn runs fn in a read-write transaction and commits if fn returns nil.
//
// The commit is atomic: readers observe either none or all of fn's writes.
// Any error from fn discards the transaction.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := d.check(ctx); err != nil {
		return err
	}

	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}

	return txn.Commit()
}

// WithReadTxn runs fn against a consistent point-in-time snapshot.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := d.check(ctx); err != nil {
		return err
	}

	txn := d.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// Get returns a copy of the value at key, or (nil, false) when absent.
func (d *DB) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	var (
		val   []byte
		found bool
	)
	err := d.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return val, found, nil
}

// Has reports whether key exists without reading its value.
func (d *DB) Has(ctx context.Context, key []byte) (bool, error) {
	var found bool
	err := d.WithReadTxn(ctx, func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Set writes one key in its own transaction.
func (d *DB) Set(ctx context.Context, key, val []byte) error {
	return d.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// Delete removes one key in its own transaction. Absent keys are not an error.
func (d *DB) Delete(ctx context.Context, key []byte) error {
	return d.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// ScanFunc visits one key during a prefix scan. val is nil when the scan
// was started without values. Both slices are only valid during the call.
type ScanFunc func(key, val []byte) error

// ScanPrefix visits every key starting with prefix, in byte order, inside
// one read snapshot.
//
// Description:
//
//	When withValues is false only keys are read, which avoids touching
//	the value log. The context is checked between items so a long scan
//	can be abandoned. Returning an error from fn stops the scan and is
//	returned unchanged.
//
// Inputs:
//
//	ctx - Context checked before and during the scan.
//	prefix - Key prefix; empty scans everything.
//	withValues - Whether fn receives values.
//	fn - Visitor.
//
// Outputs:
//
//	error - From ctx, the backend, or fn.
func (d *DB) ScanPrefix(ctx context.Context, prefix []byte, withValues bool, fn ScanFunc) error {
	return d.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = withValues

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if !withValues {
				if err := fn(item.Key(), nil); err != nil {
					return err
				}
				continue
			}
			err := item.Value(func(val []byte) error {
				return fn(item.Key(), val)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanSizes visits every key under prefix with its stored value size,
// without loading values.
func (d *DB) ScanSizes(ctx context.Context, prefix []byte, fn func(key []byte, size int64) error) error {
	return d.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if err := fn(item.Key(), item.ValueSize()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Compact flattens the LSM tree and reclaims value-log space.
//
// Description:
//
//	Runs Flatten followed by value-log GC rounds until nothing more can
//	be rewritten. "Nothing to rewrite" is success. On success the time
//	is recorded and reported by LastCompaction. In memory, only the
//	timestamp is recorded.
func (d *DB) Compact(ctx context.Context, discardRatio float64) error {
	if err := d.check(ctx); err != nil {
		return err
	}

	// In-memory databases have no files to reclaim.
	if !d.inMemory {
		if err := d.db.Flatten(1); err != nil {
			return fmt.Errorf("flatten: %w", err)
		}
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := d.db.RunValueLogGC(discardRatio)
			if err == nil {
				continue
			}
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return fmt.Errorf("value log gc: %w", err)
		}
	}

	d.markCompacted(time.Now())
	return nil
}

// LastCompaction returns when GC or Compact last succeeded.
func (d *DB) LastCompaction() (time.Time, bool) {
	ns := d.lastCompaction.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns).UTC(), true
}

func (d *DB) markCompacted(at time.Time) {
	d.lastCompaction.Store(at.UnixNano())
}

// SizeOnDisk returns the LSM and value-log sizes BadgerDB reports.
func (d *DB) SizeOnDisk() (lsm, vlog int64) {
	return d.db.Size()
}

// GCRunner runs periodic value-log garbage collection.
type GCRunner struct {
	db       *DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
	stopped  atomic.Bool
}

// NewGCRunner creates a runner. Call Start to begin and Stop to halt.
//
// Inputs:
//
//	db - The database. Must not be nil.
//	interval - How often to run GC. Must be positive.
//	ratio - Minimum garbage ratio to trigger a rewrite (0.0-1.0).
func NewGCRunner(db *DB, interval time.Duration, ratio float64) (*GCRunner, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	if interval <= 0 {
		return nil, errors.New("interval must be positive")
	}
	if ratio < 0 || ratio > 1 {
		return nil, errors.New("ratio must be between 0 and 1")
	}

	return &GCRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start launches the GC goroutine. Later calls are no-ops.
func (r *GCRunner) Start() {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	go r.run()
}

// Stop halts the GC goroutine and waits for it. Later calls are no-ops.
func (r *GCRunner) Stop() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	close(r.stopCh)
	if r.started.Load() {
		<-r.doneCh
	}
}

func (r *GCRunner) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.runGC()
		}
	}
}

func (r *GCRunner) runGC() {
	// nil means a file was rewritten; ErrNoRewrite means nothing to do.
	err := r.db.db.RunValueLogGC(r.ratio)
	switch {
	case err == nil:
		r.db.markCompacted(time.Now())
		r.db.logger.Debug("badger value log GC completed")
	case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
	default:
		r.db.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
	}
}
