// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateSegment(t *testing.T) {
	tests := []struct {
		name    string
		segment string
		wantErr bool
	}{
		// Valid segments
		{"simple", "react", false},
		{"scoped package", "@next/font", false},
		{"version", "14.1.0-rc.1+build.5", false},
		{"inner space", "my tool", false},
		{"unicode", "über", false},
		{"dots inside", "a..b", false},
		{"max length", strings.Repeat("a", MaxSegmentLen), false},

		// Invalid segments
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxSegmentLen+1), true},
		{"dot", ".", true},
		{"dot dot", "..", true},
		{"newline", "react\n", true},
		{"tab inside", "re\tact", true},
		{"nul", "re\x00act", true},
		{"leading space", " react", true},
		{"trailing space", "react ", true},
		{"invalid utf8", "re\xffact", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSegment("tool", tt.segment)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSegment(%q) error = %v, wantErr %v", tt.segment, err, tt.wantErr)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name      string
		eco       string
		tool      string
		version   string
		wantErr   bool
		wantField string
	}{
		{"all valid", "npm", "react", "18.2.0", false, ""},
		{"bad ecosystem", "", "react", "18.2.0", true, "ecosystem"},
		{"bad tool", "npm", "..", "18.2.0", true, "tool"},
		{"bad version", "npm", "react", "18.2.0\n", true, "version"},
		{"first failure wins", "", "", "", true, "ecosystem"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.eco, tt.tool, tt.version)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateKey error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.HasPrefix(err.Error(), tt.wantField) {
				t.Errorf("ValidateKey error = %q, want prefix %q", err, tt.wantField)
			}
		})
	}
}
