// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation checks user-provided fact identifiers before they are
// written.
//
// The store itself accepts any string as a key segment and escapes it on
// disk. These checks run at the outer surfaces (HTTP and CLI writes) so
// that obviously broken identifiers such as empty names, control
// characters or bare dot segments never reach storage.
package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSegmentLen is the longest accepted ecosystem, tool or version, in bytes.
const MaxSegmentLen = 256

// ValidateSegment validates one identity segment.
//
// Valid segments:
//   - 1-256 bytes of valid UTF-8
//   - No control characters (newlines, tabs, NUL)
//   - No leading or trailing whitespace
//   - Not "." or ".."
//
// Slashes are allowed since scoped package names like "@next/font" use them.
//
// Example:
//
//	if err := validation.ValidateSegment("tool", tool); err != nil {
//	    return fmt.Errorf("invalid key: %w", err)
//	}
func ValidateSegment(field, s string) error {
	if s == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if len(s) > MaxSegmentLen {
		return fmt.Errorf("%s is too long: %d bytes (max %d)", field, len(s), MaxSegmentLen)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s is not valid UTF-8: %q", field, s)
	}
	if strings.TrimSpace(s) != s {
		return fmt.Errorf("%s has leading or trailing whitespace: %q", field, s)
	}
	if s == "." || s == ".." {
		return fmt.Errorf("%s cannot be %q", field, s)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%s contains a control character: %q", field, s)
		}
	}
	return nil
}

// ValidateKey validates the three segments of a fact key.
// Returns the first failure, checked in ecosystem, tool, version order.
func ValidateKey(ecosystem, tool, version string) error {
	if err := ValidateSegment("ecosystem", ecosystem); err != nil {
		return err
	}
	if err := ValidateSegment("tool", tool); err != nil {
		return err
	}
	return ValidateSegment("version", version)
}
