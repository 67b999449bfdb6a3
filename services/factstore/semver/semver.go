// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semver parses and orders the version component of fact keys.
//
// Versions are one to three dot-separated non-negative integers. Ordering is
// numeric on each component, so "9.9.9" sorts below "10.0.0". A version
// written with fewer components ("14", "14.1") orders as if the missing
// components were zero but remembers how specific it was, which is what
// drives pattern matching and fallback resolution:
//
//	v, _ := semver.Parse("14.1.3")
//	for _, p := range v.FallbackPatterns() {
//	    // 14.1.3, then 14.1.x, then 14.x.x
//	}
//
// Pre-release and build metadata are not supported; "14.1.0-beta" is an
// invalid version.
package semver

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidVersion is matched by every version parse failure.
var ErrInvalidVersion = errors.New("invalid version")

// VersionError reports a string that is not a 1-3 component version.
type VersionError struct {
	// Input is the offending string, verbatim.
	Input string

	// Reason says which rule was broken.
	Reason string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// Is reports whether target is ErrInvalidVersion.
func (e *VersionError) Is(target error) bool {
	return target == ErrInvalidVersion
}

// SemVer is a parsed major.minor.patch version.
//
// The zero value is 0.0.0 with specificity 3.
type SemVer struct {
	Major uint64
	Minor uint64
	Patch uint64

	// parts is the number of components present in the source string.
	// Zero means "constructed directly", which is treated as 3.
	parts uint8
}

// New returns the fully specified version major.minor.patch.
func New(major, minor, patch uint64) SemVer {
	return SemVer{Major: major, Minor: minor, Patch: patch, parts: 3}
}

// Parse parses s as a 1-3 component version.
//
// Description:
//
//	Surrounding whitespace is ignored. Every component must be a
//	non-empty run of ASCII digits that fits in a uint64. Signs, letters,
//	empty components and a fourth component are rejected.
//
// Inputs:
//
//	s - Version string such as "14", "14.1" or "14.1.0".
//
// Outputs:
//
//	SemVer - The parsed version.
//	error - *VersionError (errors.Is ErrInvalidVersion) on bad input.
func Parse(s string) (SemVer, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return SemVer{}, &VersionError{Input: s, Reason: "empty"}
	}

	fields := strings.Split(trimmed, ".")
	if len(fields) > 3 {
		return SemVer{}, &VersionError{Input: s, Reason: "more than three components"}
	}

	var nums [3]uint64
	for i, f := range fields {
		n, err := parseComponent(f)
		if err != nil {
			return SemVer{}, &VersionError{Input: s, Reason: err.Error()}
		}
		nums[i] = n
	}

	return SemVer{
		Major: nums[0],
		Minor: nums[1],
		Patch: nums[2],
		parts: uint8(len(fields)),
	}, nil
}

// MustParse is Parse for literals known to be valid. It panics otherwise.
func MustParse(s string) SemVer {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func parseComponent(f string) (uint64, error) {
	if f == "" {
		return 0, errors.New("empty component")
	}
	for _, r := range f {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("component %q is not a non-negative integer", f)
		}
	}
	n, err := strconv.ParseUint(f, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("component %q out of range", f)
	}
	return n, nil
}

// Specificity is the number of components the version was written with.
func (v SemVer) Specificity() uint8 {
	if v.parts == 0 {
		return 3
	}
	return v.parts
}

// String renders the version at its own specificity ("14", "14.1", "14.1.0").
func (v SemVer) String() string {
	switch v.Specificity() {
	case 1:
		return strconv.FormatUint(v.Major, 10)
	case 2:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	default:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
}

// Compare returns -1, 0 or +1 comparing a and b numerically.
//
// Missing components compare as zero, so "14" and "14.0.0" are equal.
func Compare(a, b SemVer) int {
	switch {
	case a.Major != b.Major:
		return cmpUint(a.Major, b.Major)
	case a.Minor != b.Minor:
		return cmpUint(a.Minor, b.Minor)
	default:
		return cmpUint(a.Patch, b.Patch)
	}
}

func cmpUint(a, b uint64) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Less reports whether v orders strictly before other.
func (v SemVer) Less(other SemVer) bool {
	return Compare(v, other) < 0
}

// Equal reports numeric equality, ignoring specificity.
func (v SemVer) Equal(other SemVer) bool {
	return Compare(v, other) == 0
}

// Pattern returns the pattern fixing exactly the components v was written with.
func (v SemVer) Pattern() VersionPattern {
	switch v.Specificity() {
	case 1:
		return MajorWildcard(v.Major)
	case 2:
		return MinorWildcard(v.Major, v.Minor)
	default:
		return Exact(v.Major, v.Minor, v.Patch)
	}
}

// FallbackPatterns lists patterns from v's own specificity down to major-only.
//
// Description:
//
//	"14.1.5" yields [14.1.5, 14.1.x, 14.x.x]; "14.1" yields
//	[14.1.x, 14.x.x]; "14" yields [14.x.x]. Any is never included;
//	callers wanting "all versions" ask for it explicitly.
func (v SemVer) FallbackPatterns() []VersionPattern {
	patterns := make([]VersionPattern, 0, 3)
	n := v.Specificity()
	if n >= 3 {
		patterns = append(patterns, Exact(v.Major, v.Minor, v.Patch))
	}
	if n >= 2 {
		patterns = append(patterns, MinorWildcard(v.Major, v.Minor))
	}
	return append(patterns, MajorWildcard(v.Major))
}

// Matches reports whether every component fixed by p equals v's component.
func (v SemVer) Matches(p VersionPattern) bool {
	switch p.kind {
	case KindExact:
		return v.Major == p.major && v.Minor == p.minor && v.Patch == p.patch
	case KindMinorWildcard:
		return v.Major == p.major && v.Minor == p.minor
	case KindMajorWildcard:
		return v.Major == p.major
	default:
		return true
	}
}

// Sort orders versions ascending in place.
func Sort(vs []SemVer) {
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Less(vs[j]) })
}

// Max returns the highest version and false when vs is empty.
func Max(vs []SemVer) (SemVer, bool) {
	if len(vs) == 0 {
		return SemVer{}, false
	}
	best := vs[0]
	for _, v := range vs[1:] {
		if best.Less(v) {
			best = v
		}
	}
	return best, true
}

// VersionMatch describes how a fallback lookup was satisfied.
type VersionMatch struct {
	// Version is the stored version string that answered the query.
	Version string `json:"version"`

	// Specificity is the specificity of the pattern that matched (3..1).
	Specificity uint8 `json:"specificity"`

	// IsExact is true only when the Exact pattern matched.
	IsExact bool `json:"is_exact"`
}
