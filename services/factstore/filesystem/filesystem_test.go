// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/internal/storagetest"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "facts"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStorage_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) fact.Storage {
		return newTestStorage(t)
	})
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
}

func TestStoreFact_Layout(t *testing.T) {
	s := newTestStorage(t)
	key := fact.NewKey("@next/font", "14.0.0", "npm")

	require.NoError(t, s.StoreFact(context.Background(), key, storagetest.Data(key)))

	path := filepath.Join(s.Root(), "npm", "@next%2Ffont", "14.0.0.bin")
	require.FileExists(t, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := fact.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, storagetest.Data(key), got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestGetFact_Corrupt(t *testing.T) {
	s := newTestStorage(t)
	key := fact.NewKey("nextjs", "14.0.0", "npm")
	require.NoError(t, s.StoreFact(context.Background(), key, storagetest.Data(key)))

	path, err := key.FilePath(s.Root(), FileExt)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("garbage!"), 0640))

	_, err = s.GetFact(context.Background(), key)
	assert.ErrorIs(t, err, fact.ErrSerialization)
}

func TestUnsafeKeysRejected(t *testing.T) {
	s := newTestStorage(t)
	key := fact.NewKey("..", "1.0.0", "npm")

	err := s.StoreFact(context.Background(), key, storagetest.Data(key))
	assert.ErrorIs(t, err, fact.ErrInvalidKey)

	keys, err := s.ListTools(context.Background(), "..")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestIgnoresForeignFiles(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Root(), "npm", "nextjs"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "npm", "nextjs", "notes.txt"), []byte("x"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "stray.bin"), []byte("x"), 0640))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
	assert.Nil(t, stats.LastCompaction)
}

func TestClosed(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Close())

	_, err := s.GetFact(context.Background(), fact.NewKey("a", "1", "npm"))
	assert.ErrorIs(t, err, ErrClosed)
}
