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
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() *Data {
	return &Data{
		Tool:          "nextjs",
		Version:       "14.1.0",
		Ecosystem:     "npm",
		Documentation: "The React framework",
		Snippets: []CodeSnippet{
			{Title: "page", Code: "export default function Page() {}", Language: "tsx", LineNumber: 3},
		},
		BestPractices: []BestPractice{{Practice: "use app router", Rationale: "default since 13"}},
		Dependencies:  []string{"react", "react-dom"},
		Tags:          []string{"react", "ssr"},
		Source:        "test",
		LastUpdated:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Metadata:      map[string]string{"license": "MIT"},
	}
}

// =============================================================================
// Key Encoding
// =============================================================================

func TestStorageKey_Format(t *testing.T) {
	k := NewKey("nextjs", "14.1.0", "npm")
	assert.Equal(t, "fact:npm:nextjs:14.1.0", k.StorageKey())
	assert.Equal(t, k.StorageKey(), k.String())
}

func TestStorageKey_RoundTrip(t *testing.T) {
	keys := []Key{
		NewKey("nextjs", "14.1.0", "npm"),
		NewKey("serde", "1.0", "cargo"),
		NewKey("scope:name", "1.0.0", "npm"),
		NewKey("odd%tool", "100%", "eco:sys"),
		NewKey("%3A", "%25", "::"),
		NewKey("", "", ""),
		NewKey("@next/font", "14.0.0", "npm"),
	}

	for _, k := range keys {
		t.Run(k.StorageKey(), func(t *testing.T) {
			enc := k.StorageKey()
			assert.Equal(t, 3, strings.Count(enc, Delimiter), "segments must not leak delimiters")

			got, err := ParseStorageKey(enc)
			require.NoError(t, err)
			assert.Equal(t, k, got)
		})
	}
}

func TestParseStorageKey_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"fact:npm:nextjs",
		"fact:npm:nextjs:14:extra",
		"facts:npm:nextjs:14.0.0",
		"fact:npm:next%zzjs:14.0.0",
		"fact:npm:nextjs:14.0.0%3",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := ParseStorageKey(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidKey))
		})
	}
}

func TestPrefixes(t *testing.T) {
	assert.Equal(t, "fact:npm:", EcosystemPrefix("npm"))
	assert.Equal(t, "fact:npm:nextjs:", ToolPrefix("npm", "nextjs"))
	assert.Equal(t, "fact:npm:a%3Ab:", ToolPrefix("npm", "a:b"))

	// A tool prefix must not match a longer tool name.
	assert.False(t, strings.HasPrefix(NewKey("nextjs-auth", "1.0.0", "npm").StorageKey(), ToolPrefix("npm", "nextjs")))
	assert.True(t, strings.HasPrefix(NewKey("nextjs", "1.0.0", "npm").StorageKey(), ToolPrefix("npm", "nextjs")))

	assert.Equal(t, "fact:npm:next", SearchPrefix("npm:next"))
	assert.Equal(t, "fact:npm:next", SearchPrefix("fact:npm:next"))
	assert.Equal(t, "fact:", SearchPrefix(""))
}

// =============================================================================
// Export Paths
// =============================================================================

func TestExportPath(t *testing.T) {
	root := t.TempDir()

	p, err := NewKey("nextjs", "14.1.0", "npm").ExportPath(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "npm", "nextjs", "14.1.0.json"), p)

	p, err = NewKey("@next/font", "14.0.0", "npm").ExportPath(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "npm", "@next%2Ffont", "14.0.0.json"), p)

	for _, bad := range []Key{
		NewKey("..", "1.0.0", "npm"),
		NewKey("tool", ".", "npm"),
		NewKey("tool", "1.0.0", ""),
	} {
		_, err := bad.ExportPath(root)
		assert.ErrorIs(t, err, ErrInvalidKey, bad.StorageKey())
	}
}

func TestKeyFromExportPath_RoundTrip(t *testing.T) {
	root := t.TempDir()
	for _, k := range []Key{
		NewKey("nextjs", "14.1.0", "npm"),
		NewKey("@next/font", "14.0.0", "npm"),
		NewKey("a b", "1", "pip"),
	} {
		p, err := k.ExportPath(root)
		require.NoError(t, err)

		got, err := KeyFromExportPath(root, p)
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := KeyFromExportPath(root, filepath.Join(root, "npm", "nextjs.json"))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = KeyFromExportPath(root, filepath.Join(root, "npm", "nextjs", "14.0.0.txt"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// =============================================================================
// Codec
// =============================================================================

func TestCodec_RoundTrip(t *testing.T) {
	d := sampleData()

	raw, err := Encode(d)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, raw[0])

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestCodec_DetectsCorruption(t *testing.T) {
	raw, err := Encode(sampleData())
	require.NoError(t, err)

	t.Run("flipped body byte", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[len(bad)-1] ^= 0xFF
		_, err := Decode(bad)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSerialization)
		assert.Contains(t, err.Error(), "crc mismatch")
	})

	t.Run("unknown schema", func(t *testing.T) {
		bad := append([]byte(nil), raw...)
		bad[0] = 99
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrSerialization)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Decode(raw[:3])
		assert.ErrorIs(t, err, ErrSerialization)
	})
}

func TestCodec_NilData(t *testing.T) {
	_, err := Encode(nil)
	assert.ErrorIs(t, err, ErrSerialization)

	_, err = MarshalJSON(nil)
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestJSON_RoundTrip(t *testing.T) {
	d := sampleData()

	raw, err := MarshalJSON(d)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(raw), "}\n"))
	assert.Contains(t, string(raw), "\n  \"tool\": \"nextjs\"")

	got, err := UnmarshalJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = UnmarshalJSON([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestStats_Add(t *testing.T) {
	s := NewStats()
	s.Add("npm", 10)
	s.Add("npm", 5)
	s.Add("cargo", 1)

	assert.Equal(t, uint64(3), s.TotalEntries)
	assert.Equal(t, uint64(16), s.TotalSizeBytes)
	assert.Equal(t, map[string]uint64{"npm": 2, "cargo": 1}, s.Ecosystems)
	assert.Nil(t, s.LastCompaction)
}
