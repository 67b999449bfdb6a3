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
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mikkihugo/ex-llm-sub002/services/factstore/fact"
	"github.com/mikkihugo/ex-llm-sub002/services/factstore/semver"
)

// VersionedFact is one stored version of a tool with its payload.
type VersionedFact struct {
	Version string     `json:"version"`
	Data    *fact.Data `json:"data"`
}

// versionedEntry is a stored key whose version parsed. Payloads are
// loaded only for the entries a query selects.
type versionedEntry struct {
	ver semver.SemVer
	key fact.Key
}

// toolEntries lists every stored version of one tool without reading
// payloads, drops versions that do not parse (logging each at debug) and
// sorts the rest ascending.
func (s *VersionedFactStorage) toolEntries(ctx context.Context, ecosystem, tool string) ([]versionedEntry, error) {
	keys, err := s.scanKeys(ctx, fact.ToolPrefix(ecosystem, tool))
	if err != nil {
		return nil, err
	}

	out := make([]versionedEntry, 0, len(keys))
	for _, k := range keys {
		v, err := semver.Parse(k.Version)
		if err != nil {
			s.logger.Debug("skipping unparseable version",
				slog.String("key", k.StorageKey()),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, versionedEntry{ver: v, key: k})
	}

	// Ties between "14" and "14.0.0" keep storage-key order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].ver.Less(out[j].ver) })
	return out, nil
}

// load reads the payloads of entries in order. Entries deleted since the
// key scan are dropped.
func (s *VersionedFactStorage) load(ctx context.Context, entries []versionedEntry) ([]VersionedFact, error) {
	out := []VersionedFact{}
	for _, e := range entries {
		data, err := s.get(ctx, e.key)
		if err != nil {
			return nil, err
		}
		if data == nil {
			continue
		}
		out = append(out, VersionedFact{Version: e.key.Version, Data: data})
	}
	return out, nil
}

// GetToolVersions returns every stored version string of tool, including
// ones that are not semantic versions, in storage-key order.
func (s *VersionedFactStorage) GetToolVersions(ctx context.Context, ecosystem, tool string) (_ []string, err error) {
	ctx, finish := startOp(ctx, "versions", toolAttrs(ecosystem, tool)...)
	defer func() { finish(err) }()

	keys, err := s.scanKeys(ctx, fact.ToolPrefix(ecosystem, tool))
	if err != nil {
		return nil, err
	}
	versions := make([]string, 0, len(keys))
	for _, k := range keys {
		versions = append(versions, k.Version)
	}
	return versions, nil
}

// GetLatestVersion returns the highest stored semantic version of tool.
//
// Outputs:
//
//	string - The stored version string.
//	*fact.Data - Its payload.
//	bool - False when no stored version parses; the other results are zero.
//	error - Backend or decode failure.
func (s *VersionedFactStorage) GetLatestVersion(ctx context.Context, ecosystem, tool string) (_ string, _ *fact.Data, _ bool, err error) {
	ctx, finish := startOp(ctx, "latest", toolAttrs(ecosystem, tool)...)
	defer func() { finish(err) }()

	entries, err := s.toolEntries(ctx, ecosystem, tool)
	if err != nil {
		return "", nil, false, err
	}
	for i := len(entries) - 1; i >= 0; i-- {
		data, err := s.get(ctx, entries[i].key)
		if err != nil {
			return "", nil, false, err
		}
		if data != nil {
			return entries[i].key.Version, data, true, nil
		}
	}
	return "", nil, false, nil
}

// QueryVersions returns every stored version of tool matching pattern,
// ascending.
//
// Inputs:
//
//	pattern - "*", "14", "14.1" or "14.1.0". Fewer components widen the
//	match: "14" matches every 14.x.y.
//
// Outputs:
//
//	[]VersionedFact - Matches, possibly empty.
//	error - semver.ErrInvalidVersion for a malformed pattern.
func (s *VersionedFactStorage) QueryVersions(ctx context.Context, ecosystem, tool, pattern string) (_ []VersionedFact, err error) {
	ctx, finish := startOp(ctx, "query", append(toolAttrs(ecosystem, tool), attribute.String("pattern", pattern))...)
	defer func() { finish(err) }()

	p, err := semver.ParsePattern(pattern)
	if err != nil {
		return nil, err
	}

	entries, err := s.toolEntries(ctx, ecosystem, tool)
	if err != nil {
		return nil, err
	}

	selected := entries[:0]
	for _, e := range entries {
		if e.ver.Matches(p) {
			selected = append(selected, e)
		}
	}
	return s.load(ctx, selected)
}

// QueryConstraint returns every stored version of tool satisfying a range
// expression such as ">=14.1, <15" or "^14", ascending.
func (s *VersionedFactStorage) QueryConstraint(ctx context.Context, ecosystem, tool, expr string) (_ []VersionedFact, err error) {
	ctx, finish := startOp(ctx, "constraint", append(toolAttrs(ecosystem, tool), attribute.String("constraint", expr))...)
	defer func() { finish(err) }()

	c, err := semver.ParseConstraint(expr)
	if err != nil {
		return nil, err
	}

	entries, err := s.toolEntries(ctx, ecosystem, tool)
	if err != nil {
		return nil, err
	}

	selected := entries[:0]
	for _, e := range entries {
		if c.Check(e.ver) {
			selected = append(selected, e)
		}
	}
	return s.load(ctx, selected)
}

// GetWithFallback resolves version to the best stored fact.
//
// Description:
//
//	Tries the query's fallback patterns from most to least specific
//	("14.1.3" tries 14.1.3, then 14.1.x, then 14.x.x). Within the first
//	pattern that matches anything, the highest matching version wins.
//	A query never falls back across major versions.
//
// Outputs:
//
//	*fact.Data - The matched payload, or nil when nothing matched.
//	*semver.VersionMatch - How the match was made, or nil with nil data.
//	error - semver.ErrInvalidVersion for a malformed query version.
func (s *VersionedFactStorage) GetWithFallback(ctx context.Context, ecosystem, tool, version string) (_ *fact.Data, _ *semver.VersionMatch, err error) {
	ctx, finish := startOp(ctx, "fallback", append(toolAttrs(ecosystem, tool), attribute.String("fact.version", version))...)
	defer func() { finish(err) }()

	q, err := semver.Parse(version)
	if err != nil {
		return nil, nil, err
	}

	entries, err := s.toolEntries(ctx, ecosystem, tool)
	if err != nil {
		return nil, nil, err
	}

	span := trace.SpanFromContext(ctx)
	for _, p := range q.FallbackPatterns() {
		// entries are ascending, so the highest match is found last.
		for i := len(entries) - 1; i >= 0; i-- {
			e := entries[i]
			if !e.ver.Matches(p) {
				continue
			}
			data, err := s.get(ctx, e.key)
			if err != nil {
				return nil, nil, err
			}
			if data == nil {
				continue
			}

			fallbackMatchesTotal.WithLabelValues(p.Kind().String()).Inc()
			span.SetAttributes(
				attribute.String("match.version", e.key.Version),
				attribute.String("match.pattern", p.String()),
			)
			return data, &semver.VersionMatch{
				Version:     e.key.Version,
				Specificity: p.Specificity(),
				IsExact:     p.IsExact(),
			}, nil
		}
	}

	fallbackMatchesTotal.WithLabelValues("none").Inc()
	return nil, nil, nil
}

// CompareVersions returns the facts of two versions of the same tool.
//
// Outputs:
//
//	error - *VersionNotFoundError naming the first version that is not
//	stored (errors.Is ErrVersionNotFound).
func (s *VersionedFactStorage) CompareVersions(ctx context.Context, ecosystem, tool, v1, v2 string) (_ *fact.Data, _ *fact.Data, err error) {
	ctx, finish := startOp(ctx, "compare", append(toolAttrs(ecosystem, tool),
		attribute.String("v1", v1), attribute.String("v2", v2))...)
	defer func() { finish(err) }()

	if err := s.checkOpen(); err != nil {
		return nil, nil, err
	}

	d1, err := s.get(ctx, fact.NewKey(tool, v1, ecosystem))
	if err != nil {
		return nil, nil, err
	}
	if d1 == nil {
		return nil, nil, &VersionNotFoundError{Ecosystem: ecosystem, Tool: tool, Version: v1}
	}

	d2, err := s.get(ctx, fact.NewKey(tool, v2, ecosystem))
	if err != nil {
		return nil, nil, err
	}
	if d2 == nil {
		return nil, nil, &VersionNotFoundError{Ecosystem: ecosystem, Tool: tool, Version: v2}
	}

	return d1, d2, nil
}
