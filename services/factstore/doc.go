// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package factstore is a version-aware knowledge store for tool facts.
//
// Facts are documentation, snippets and best practices about a tool at a
// specific version inside a package ecosystem ("nextjs" 14.1.0 in "npm").
// They are kept in a BadgerDB database under keys of the form
// "fact:{ecosystem}:{tool}:{version}" and can be mirrored to a tree of
// pretty-printed JSON files for review in git.
//
// # Version-aware queries
//
// Versions are compared as numeric semantic versions, so "10.0.0" sorts
// after "9.9.9". Lookups can fall back from an exact version to the
// newest release in the same minor line, then the same major line:
//
//	data, match, err := store.GetWithFallback(ctx, "npm", "nextjs", "14.1.3")
//	// match.Version == "14.1.5", match.Specificity == 2, match.IsExact == false
//
// Stored versions that do not parse as semantic versions are kept and
// listed but skipped by every version-aware query.
//
// # JSON mirror
//
// With AutoExport enabled every successful StoreFact also writes
// {ExportDir}/{ecosystem}/{tool}/{version}.json. The mirror is secondary:
// a failure to write it never turns a committed store into an error. It
// is reported through Config.OnExportError, the
// factstore_export_failures_total counter, and LastExportError.
//
// # Concurrency
//
// VersionedFactStorage is safe for concurrent use. Reads run against
// snapshots and never block writers; writes are serialized by BadgerDB.
// One process at a time may open a database directory.
package factstore
