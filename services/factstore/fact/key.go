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
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Namespace is the first segment of every storage key.
const Namespace = "fact"

// Delimiter separates storage key segments. It never appears unescaped
// inside a segment.
const Delimiter = ":"

// ErrInvalidKey is matched by every key decoding or path mapping failure.
var ErrInvalidKey = errors.New("invalid fact key")

// KeyError reports a storage key or key component that cannot be used.
type KeyError struct {
	Input  string
	Reason string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("invalid fact key %q: %s", e.Input, e.Reason)
}

// Is reports whether target is ErrInvalidKey.
func (e *KeyError) Is(target error) bool {
	return target == ErrInvalidKey
}

// Key identifies one fact: a tool at a version inside an ecosystem.
//
// Keys are plain values. Version syntax is not checked here; it only
// matters when a version-aware query interprets it.
type Key struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	Ecosystem string `json:"ecosystem"`
}

// NewKey builds a key. It never fails.
func NewKey(tool, version, ecosystem string) Key {
	return Key{Tool: tool, Version: version, Ecosystem: ecosystem}
}

// StorageKey encodes k as "fact:{ecosystem}:{tool}:{version}".
//
// Each segment is escaped ('%' -> "%25", ':' -> "%3A") so that the
// encoding is prefix-scannable and ParseStorageKey is its exact inverse.
func (k Key) StorageKey() string {
	return Namespace + Delimiter +
		escapeSegment(k.Ecosystem) + Delimiter +
		escapeSegment(k.Tool) + Delimiter +
		escapeSegment(k.Version)
}

// String is StorageKey, for logs.
func (k Key) String() string {
	return k.StorageKey()
}

// ParseStorageKey decodes a string produced by StorageKey.
//
// Outputs:
//
//	Key - The decoded key.
//	error - *KeyError (errors.Is ErrInvalidKey) for any other input.
func ParseStorageKey(s string) (Key, error) {
	parts := strings.Split(s, Delimiter)
	if len(parts) != 4 {
		return Key{}, &KeyError{Input: s, Reason: fmt.Sprintf("expected 4 segments, got %d", len(parts))}
	}
	if parts[0] != Namespace {
		return Key{}, &KeyError{Input: s, Reason: "missing fact namespace"}
	}

	var decoded [3]string
	for i, p := range parts[1:] {
		d, err := unescapeSegment(p)
		if err != nil {
			return Key{}, &KeyError{Input: s, Reason: err.Error()}
		}
		decoded[i] = d
	}

	return Key{Ecosystem: decoded[0], Tool: decoded[1], Version: decoded[2]}, nil
}

// EcosystemPrefix is the scan prefix for every key in an ecosystem.
func EcosystemPrefix(ecosystem string) string {
	return Namespace + Delimiter + escapeSegment(ecosystem) + Delimiter
}

// ToolPrefix is the scan prefix for every version of one tool.
func ToolPrefix(ecosystem, tool string) string {
	return EcosystemPrefix(ecosystem) + escapeSegment(tool) + Delimiter
}

// SearchPrefix normalizes a caller-supplied search prefix.
//
// A prefix that already names the namespace is used as is; anything else
// is taken relative to it, so "npm:next" scans "fact:npm:next".
func SearchPrefix(prefix string) string {
	if strings.HasPrefix(prefix, Namespace+Delimiter) {
		return prefix
	}
	return Namespace + Delimiter + prefix
}

// ExportPath maps k to "{root}/{ecosystem}/{tool}/{version}.json".
//
// Segments are path-escaped so that tools like "@next/font" stay one
// directory level. Empty, "." and ".." segments are rejected.
func (k Key) ExportPath(root string) (string, error) {
	return k.FilePath(root, ".json")
}

// KeyFromExportPath inverts ExportPath for a file under root.
func KeyFromExportPath(root, path string) (Key, error) {
	return KeyFromFilePath(root, path, ".json")
}

// FilePath maps k to "{root}/{ecosystem}/{tool}/{version}{ext}" with the
// same escaping and checks as ExportPath.
func (k Key) FilePath(root, ext string) (string, error) {
	segs := [3]string{k.Ecosystem, k.Tool, k.Version}
	for i, s := range segs {
		if s == "" || s == "." || s == ".." {
			return "", &KeyError{Input: k.StorageKey(), Reason: fmt.Sprintf("segment %q cannot be a path element", s)}
		}
		segs[i] = url.PathEscape(s)
	}
	return filepath.Join(root, segs[0], segs[1], segs[2]+ext), nil
}

// KeyFromFilePath inverts FilePath.
func KeyFromFilePath(root, path, ext string) (Key, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Key{}, &KeyError{Input: path, Reason: err.Error()}
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || !strings.HasSuffix(parts[2], ext) {
		return Key{}, &KeyError{Input: path, Reason: fmt.Sprintf("not an {ecosystem}/{tool}/{version}%s path", ext)}
	}
	parts[2] = strings.TrimSuffix(parts[2], ext)

	var decoded [3]string
	for i, p := range parts {
		d, err := url.PathUnescape(p)
		if err != nil || d == "" {
			return Key{}, &KeyError{Input: path, Reason: fmt.Sprintf("bad path segment %q", p)}
		}
		decoded[i] = d
	}
	return Key{Ecosystem: decoded[0], Tool: decoded[1], Version: decoded[2]}, nil
}

func escapeSegment(s string) string {
	if !strings.ContainsAny(s, "%:") {
		return s
	}
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, ":", "%3A")
}

func unescapeSegment(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated escape at offset %d", i)
		}
		switch s[i+1 : i+3] {
		case "25":
			b.WriteByte('%')
		case "3A":
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("unknown escape %q", s[i:i+3])
		}
		i += 2
	}
	return b.String(), nil
}
