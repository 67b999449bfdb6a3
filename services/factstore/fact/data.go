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

import "time"

// Data is the payload stored for one fact.
//
// Producers (documentation collectors, snippet extractors) fill it in;
// the storage layer never looks inside. Field order and JSON names are
// stable because exported JSON files are meant to be diffed in git.
type Data struct {
	Tool      string `json:"tool"`
	Version   string `json:"version"`
	Ecosystem string `json:"ecosystem"`

	Documentation   string            `json:"documentation,omitempty"`
	Snippets        []CodeSnippet     `json:"snippets,omitempty"`
	Examples        []Example         `json:"examples,omitempty"`
	BestPractices   []BestPractice    `json:"best_practices,omitempty"`
	Troubleshooting []Troubleshooting `json:"troubleshooting,omitempty"`
	GitHubSources   []GitHubSource    `json:"github_sources,omitempty"`
	Dependencies    []string          `json:"dependencies,omitempty"`
	Tags            []string          `json:"tags,omitempty"`

	// Source names the producer that wrote this record.
	Source      string    `json:"source,omitempty"`
	LastUpdated time.Time `json:"last_updated"`

	// Metadata carries producer-specific extras.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CodeSnippet is a fragment of source code attached to a fact.
type CodeSnippet struct {
	Title       string `json:"title"`
	Code        string `json:"code"`
	Language    string `json:"language,omitempty"`
	Description string `json:"description,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	LineNumber  int    `json:"line_number,omitempty"`
}

// Example is a worked usage example.
type Example struct {
	Title       string   `json:"title"`
	Code        string   `json:"code"`
	Explanation string   `json:"explanation,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// BestPractice is a recommendation with optional good/bad illustrations.
type BestPractice struct {
	Practice    string `json:"practice"`
	Rationale   string `json:"rationale,omitempty"`
	GoodExample string `json:"good_example,omitempty"`
	BadExample  string `json:"bad_example,omitempty"`
}

// Troubleshooting pairs a known issue with its fix.
type Troubleshooting struct {
	Issue    string `json:"issue"`
	Solution string `json:"solution"`
	Symptoms string `json:"symptoms,omitempty"`
}

// GitHubSource points at the repository a fact was harvested from.
type GitHubSource struct {
	Repo      string    `json:"repo"`
	Stars     int       `json:"stars,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is a key with its payload, as returned by full scans.
type Entry struct {
	Key  Key   `json:"key"`
	Data *Data `json:"data"`
}
