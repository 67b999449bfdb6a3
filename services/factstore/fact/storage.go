// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fact

import (
	"context"
	"time"
)

// Storage is the contract every fact backend satisfies.
//
// Not-found is never an error: GetFact returns (nil, nil) and list
// operations return empty slices. Errors mean I/O failure, a payload that
// cannot be decoded (errors.Is ErrSerialization), or a closed backend.
//
// Implementations are safe for concurrent use.
type Storage interface {
	// StoreFact inserts or replaces the value at key.
	StoreFact(ctx context.Context, key Key, data *Data) error

	// GetFact returns the value at key, or nil when absent.
	GetFact(ctx context.Context, key Key) (*Data, error)

	// Exists reports whether key has a value.
	Exists(ctx context.Context, key Key) (bool, error)

	// DeleteFact removes key. Deleting an absent key succeeds.
	DeleteFact(ctx context.Context, key Key) error

	// ListTools returns every key in ecosystem.
	ListTools(ctx context.Context, ecosystem string) ([]Key, error)

	// SearchTools returns every key whose encoded form starts with prefix.
	// See SearchPrefix for how prefix is normalized.
	SearchTools(ctx context.Context, prefix string) ([]Key, error)

	// SearchByTags is reserved for a secondary tag index. Until one exists
	// it returns an empty result and no error.
	SearchByTags(ctx context.Context, tags []string) ([]Key, error)

	// Stats aggregates the whole store by scanning it.
	Stats(ctx context.Context) (*Stats, error)

	// GetAllFacts returns every stored fact.
	GetAllFacts(ctx context.Context) ([]Entry, error)

	// Close releases the backend.
	Close() error
}

// Stats is a point-in-time aggregate of a store.
type Stats struct {
	TotalEntries   uint64            `json:"total_entries"`
	TotalSizeBytes uint64            `json:"total_size_bytes"`
	Ecosystems     map[string]uint64 `json:"ecosystems"`

	// DiskSizeBytes is the backend's on-disk footprint, including
	// overhead such as indexes and logs. Zero when unknown or in memory.
	DiskSizeBytes uint64 `json:"disk_size_bytes,omitempty"`

	// LastCompaction is nil when the backend has never compacted.
	LastCompaction *time.Time `json:"last_compaction,omitempty"`
}

// NewStats returns an empty Stats with its map allocated.
func NewStats() *Stats {
	return &Stats{Ecosystems: make(map[string]uint64)}
}

// Add tallies one entry of size bytes under ecosystem.
func (s *Stats) Add(ecosystem string, size int) {
	s.TotalEntries++
	s.TotalSizeBytes += uint64(size)
	s.Ecosystems[ecosystem]++
}
