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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
)

func TestExportImport_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	ctx := context.Background()

	key := fact.NewKey("nextjs", "14.1.0", "npm")
	data := testData("nextjs", "14.1.0", "npm")
	data.Snippets = []fact.CodeSnippet{{Title: "page", Code: "export default function Page() {}"}}

	require.NoError(t, s.ExportToJSON(ctx, key, data))

	path := filepath.Join(dir, "npm", "nextjs", "14.1.0.json")
	require.FileExists(t, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "{\n  \""), "two-space indent")
	assert.True(t, strings.HasSuffix(string(raw), "}\n"), "trailing newline")

	got, err := s.ImportFromJSON(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Export does not touch the primary store.
	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestImportFromJSON_Absent(t *testing.T) {
	s := newTestStore(t, t.TempDir())

	got, err := s.ImportFromJSON(context.Background(), fact.NewKey("nextjs", "1.0.0", "npm"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestImportFromJSON_Malformed(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	key := fact.NewKey("nextjs", "1.0.0", "npm")

	path, err := s.ExportPath(key)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0640))

	_, err = s.ImportFromJSON(context.Background(), key)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExport)
	assert.ErrorIs(t, err, fact.ErrSerialization)
}

func TestExport_NoExportDir(t *testing.T) {
	s := newTestStore(t, "")
	ctx := context.Background()
	key := fact.NewKey("nextjs", "1.0.0", "npm")

	assert.ErrorIs(t, s.ExportToJSON(ctx, key, testData("nextjs", "1.0.0", "npm")), ErrNoExportDir)
	_, err := s.ImportFromJSON(ctx, key)
	assert.ErrorIs(t, err, ErrNoExportDir)
	_, err = s.ExportAllToJSON(ctx)
	assert.ErrorIs(t, err, ErrNoExportDir)
}

func TestExport_UnsafeKey(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	err := s.ExportToJSON(context.Background(), fact.NewKey("..", "1.0.0", "npm"), testData("..", "1.0.0", "npm"))
	assert.ErrorIs(t, err, ErrExport)
	assert.ErrorIs(t, err, fact.ErrInvalidKey)
}

func autoExportStore(t *testing.T, exportDir string, handler ExportErrorHandler) *VersionedFactStorage {
	t.Helper()
	cfg := InMemoryConfig()
	cfg.ExportDir = exportDir
	cfg.AutoExport = true
	cfg.OnExportError = handler
	s, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAutoExport_WritesMirror(t *testing.T) {
	dir := t.TempDir()
	s := autoExportStore(t, dir, nil)
	ctx := context.Background()
	key := fact.NewKey("nextjs", "14.1.0", "npm")

	require.NoError(t, s.StoreFact(ctx, key, testData("nextjs", "14.1.0", "npm")))
	assert.FileExists(t, filepath.Join(dir, "npm", "nextjs", "14.1.0.json"))
	assert.NoError(t, s.LastExportError())

	require.NoError(t, s.DeleteFact(ctx, key))
	assert.NoFileExists(t, filepath.Join(dir, "npm", "nextjs", "14.1.0.json"))
}

func TestAutoExport_FailSoft(t *testing.T) {
	var (
		mu       sync.Mutex
		reported []fact.Key
	)
	blocked := filepath.Join(t.TempDir(), "blocked")
	s := autoExportStore(t, blocked, func(key fact.Key, err error) {
		mu.Lock()
		defer mu.Unlock()
		reported = append(reported, key)
	})

	// A regular file where the export directory should be makes every
	// mirror write fail.
	require.NoError(t, os.Remove(blocked))
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0640))
	ctx := context.Background()
	key := fact.NewKey("nextjs", "14.1.0", "npm")

	err := s.StoreFact(ctx, key, testData("nextjs", "14.1.0", "npm"))
	require.NoError(t, err, "committed write is not reported as a failure")

	got, err := s.GetFact(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got, "primary write committed")

	exportErr := s.LastExportError()
	require.Error(t, exportErr)
	assert.ErrorIs(t, exportErr, ErrExport)

	var ee *ExportError
	require.ErrorAs(t, exportErr, &ee)
	assert.Equal(t, key, ee.Key)

	mu.Lock()
	assert.Equal(t, []fact.Key{key}, reported)
	mu.Unlock()
}

func TestExportAllToJSON(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, dir)
	ctx := context.Background()

	mustStore(t, s, "nextjs", "14.0.0", "npm")
	mustStore(t, s, "nextjs", "14.1.0", "npm")
	mustStore(t, s, "@next/font", "14.0.0", "npm")
	mustStore(t, s, "serde", "1.0.0", "cargo")

	n, err := s.ExportAllToJSON(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	assert.FileExists(t, filepath.Join(dir, "npm", "nextjs", "14.0.0.json"))
	assert.FileExists(t, filepath.Join(dir, "npm", "nextjs", "14.1.0.json"))
	assert.FileExists(t, filepath.Join(dir, "npm", "@next%2Ffont", "14.0.0.json"))
	assert.FileExists(t, filepath.Join(dir, "cargo", "serde", "1.0.0.json"))
}

func TestExportAllToJSON_Cancelled(t *testing.T) {
	s := newTestStore(t, t.TempDir())
	mustStore(t, s, "nextjs", "14.0.0", "npm")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := s.ExportAllToJSON(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestImportAllFromJSON_RebuildsStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	src := newTestStore(t, dir)
	mustStore(t, src, "nextjs", "14.0.0", "npm")
	mustStore(t, src, "@next/font", "14.0.0", "npm")
	mustStore(t, src, "serde", "1.0.0", "cargo")
	_, err := src.ExportAllToJSON(ctx)
	require.NoError(t, err)

	// Noise that is not a fact file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray.json"), []byte("{}"), 0640))

	dst := newTestStore(t, dir)
	n, err := dst.ImportAllFromJSON(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want, err := src.GetAllFacts(ctx)
	require.NoError(t, err)
	got, err := dst.GetAllFacts(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestImportAllFromJSON_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "removed")
	s := newTestStore(t, dir)
	require.NoError(t, os.RemoveAll(dir))

	n, err := s.ImportAllFromJSON(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
