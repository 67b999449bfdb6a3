// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semver

import "fmt"

// PatternKind enumerates the closed set of version patterns.
type PatternKind uint8

const (
	// KindAny matches every version.
	KindAny PatternKind = iota

	// KindMajorWildcard fixes major only (14.x.x).
	KindMajorWildcard

	// KindMinorWildcard fixes major and minor (14.1.x).
	KindMinorWildcard

	// KindExact fixes all three components.
	KindExact
)

// String returns the kind name used in logs and API responses.
func (k PatternKind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindMinorWildcard:
		return "minor"
	case KindMajorWildcard:
		return "major"
	case KindAny:
		return "any"
	default:
		return "unknown"
	}
}

// VersionPattern constrains some prefix of a version's components.
//
// Construct with Exact, MinorWildcard, MajorWildcard or Any. The kind
// doubles as the specificity: Exact=3, MinorWildcard=2, MajorWildcard=1,
// Any=0.
type VersionPattern struct {
	kind  PatternKind
	major uint64
	minor uint64
	patch uint64
}

// Exact matches major.minor.patch only.
func Exact(major, minor, patch uint64) VersionPattern {
	return VersionPattern{kind: KindExact, major: major, minor: minor, patch: patch}
}

// MinorWildcard matches major.minor.*.
func MinorWildcard(major, minor uint64) VersionPattern {
	return VersionPattern{kind: KindMinorWildcard, major: major, minor: minor}
}

// MajorWildcard matches major.*.*.
func MajorWildcard(major uint64) VersionPattern {
	return VersionPattern{kind: KindMajorWildcard, major: major}
}

// Any matches every version.
func Any() VersionPattern {
	return VersionPattern{kind: KindAny}
}

// ParsePattern parses "*", "14", "14.1" or "14.1.0" into a pattern.
func ParsePattern(s string) (VersionPattern, error) {
	if s == "*" {
		return Any(), nil
	}
	v, err := Parse(s)
	if err != nil {
		return VersionPattern{}, err
	}
	return v.Pattern(), nil
}

// Kind returns the pattern variant.
func (p VersionPattern) Kind() PatternKind {
	return p.kind
}

// Specificity is the number of fixed components (0..3).
func (p VersionPattern) Specificity() uint8 {
	return uint8(p.kind)
}

// IsExact reports whether p is the Exact variant.
func (p VersionPattern) IsExact() bool {
	return p.kind == KindExact
}

// String renders the pattern with x wildcards ("14.1.x", "14.x.x", "*").
func (p VersionPattern) String() string {
	switch p.kind {
	case KindExact:
		return fmt.Sprintf("%d.%d.%d", p.major, p.minor, p.patch)
	case KindMinorWildcard:
		return fmt.Sprintf("%d.%d.x", p.major, p.minor)
	case KindMajorWildcard:
		return fmt.Sprintf("%d.x.x", p.major)
	default:
		return "*"
	}
}
