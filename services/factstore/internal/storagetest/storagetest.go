// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storagetest is a behavioural test suite every fact.Storage
// implementation must pass.
package storagetest

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

// Factory returns a fresh, empty storage. The suite closes it.
type Factory func(t *testing.T) fact.Storage

// Data returns a deterministic payload for key.
func Data(key fact.Key) *fact.Data {
	return &fact.Data{
		Tool:          key.Tool,
		Version:       key.Version,
		Ecosystem:     key.Ecosystem,
		Documentation: "docs for " + key.StorageKey(),
		Dependencies:  []string{"dep-a"},
		LastUpdated:   time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Run executes the contract suite against storages built by newStorage.
func Run(t *testing.T, newStorage Factory) {
	t.Run("GetMissingIsNil", func(t *testing.T) {
		s := open(t, newStorage)
		got, err := s.GetFact(context.Background(), fact.NewKey("none", "1.0.0", "npm"))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("StoreGetRoundTrip", func(t *testing.T) {
		s := open(t, newStorage)
		ctx := context.Background()
		key := fact.NewKey("nextjs", "14.1.0", "npm")

		require.NoError(t, s.StoreFact(ctx, key, Data(key)))
		got, err := s.GetFact(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, Data(key), got)

		ok, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Upsert", func(t *testing.T) {
		s := open(t, newStorage)
		ctx := context.Background()
		key := fact.NewKey("nextjs", "14.1.0", "npm")

		require.NoError(t, s.StoreFact(ctx, key, Data(key)))
		changed := Data(key)
		changed.Documentation = "v2"
		require.NoError(t, s.StoreFact(ctx, key, changed))

		got, err := s.GetFact(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "v2", got.Documentation)

		keys, err := s.ListTools(ctx, "npm")
		require.NoError(t, err)
		assert.Len(t, keys, 1)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		s := open(t, newStorage)
		ctx := context.Background()
		key := fact.NewKey("nextjs", "14.1.0", "npm")

		require.NoError(t, s.StoreFact(ctx, key, Data(key)))
		require.NoError(t, s.DeleteFact(ctx, key))
		require.NoError(t, s.DeleteFact(ctx, key))

		ok, err := s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ListAndSearch", func(t *testing.T) {
		s := open(t, newStorage)
		ctx := context.Background()
		keys := []fact.Key{
			fact.NewKey("nextjs", "14.0.0", "npm"),
			fact.NewKey("nextjs", "14.1.0", "npm"),
			fact.NewKey("nextjs-auth", "1.0.0", "npm"),
			fact.NewKey("@next/font", "14.0.0", "npm"),
			fact.NewKey("serde", "1.0.0", "cargo"),
		}
		for _, k := range keys {
			require.NoError(t, s.StoreFact(ctx, k, Data(k)))
		}

		npm, err := s.ListTools(ctx, "npm")
		require.NoError(t, err)
		assert.Len(t, npm, 4)

		none, err := s.ListTools(ctx, "pip")
		require.NoError(t, err)
		assert.Empty(t, none)

		exact, err := s.SearchTools(ctx, fact.ToolPrefix("npm", "nextjs"))
		require.NoError(t, err)
		assert.Equal(t, []fact.Key{keys[0], keys[1]}, exact)

		relative, err := s.SearchTools(ctx, "npm:next")
		require.NoError(t, err)
		assert.Len(t, relative, 3)

		tagged, err := s.SearchByTags(ctx, []string{"anything"})
		require.NoError(t, err)
		assert.Empty(t, tagged)
	})

	t.Run("StatsAndGetAll", func(t *testing.T) {
		s := open(t, newStorage)
		ctx := context.Background()
		keys := []fact.Key{
			fact.NewKey("serde", "1.0.0", "cargo"),
			fact.NewKey("nextjs", "14.0.0", "npm"),
			fact.NewKey("react", "18.2.0", "npm"),
		}
		for _, k := range keys {
			require.NoError(t, s.StoreFact(ctx, k, Data(k)))
		}

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), stats.TotalEntries)
		assert.Greater(t, stats.TotalSizeBytes, uint64(0))
		assert.Equal(t, map[string]uint64{"cargo": 1, "npm": 2}, stats.Ecosystems)

		all, err := s.GetAllFacts(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i, e := range all {
			assert.Equal(t, keys[i], e.Key)
			assert.Equal(t, Data(keys[i]), e.Data)
		}
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		s := open(t, newStorage)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				k := fact.NewKey("tool", "1.0."+strconv.Itoa(i), "npm")
				assert.NoError(t, s.StoreFact(ctx, k, Data(k)))
			}(i)
		}
		wg.Wait()

		keys, err := s.ListTools(ctx, "npm")
		require.NoError(t, err)
		assert.Len(t, keys, 16)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		s := open(t, newStorage)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		key := fact.NewKey("nextjs", "14.1.0", "npm")
		assert.ErrorIs(t, s.StoreFact(ctx, key, Data(key)), context.Canceled)
	})
}

func open(t *testing.T, newStorage Factory) fact.Storage {
	t.Helper()
	s := newStorage(t)
	t.Cleanup(func() { s.Close() })
	return s
}
