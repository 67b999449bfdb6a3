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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Parse
// =============================================================================

func TestParse_Valid(t *testing.T) {
	tests := []struct {
		in          string
		major       uint64
		minor       uint64
		patch       uint64
		specificity uint8
		str         string
	}{
		{"14", 14, 0, 0, 1, "14"},
		{"14.1", 14, 1, 0, 2, "14.1"},
		{"14.1.0", 14, 1, 0, 3, "14.1.0"},
		{"0.0.0", 0, 0, 0, 3, "0.0.0"},
		{" 10.2.3 ", 10, 2, 3, 3, "10.2.3"},
		{"007.01.2", 7, 1, 2, 3, "7.1.2"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.major, v.Major)
			assert.Equal(t, tt.minor, v.Minor)
			assert.Equal(t, tt.patch, v.Patch)
			assert.Equal(t, tt.specificity, v.Specificity())
			assert.Equal(t, tt.str, v.String())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"v14",
		"14.",
		".14",
		"14..1",
		"14.1.0.2",
		"-1.0.0",
		"+1.0.0",
		"14.1.0-beta",
		"14.1.0+build",
		"latest",
		"99999999999999999999999",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidVersion))

			var verr *VersionError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, in, verr.Input)
			assert.Contains(t, err.Error(), in)
		})
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("nope") })
	assert.NotPanics(t, func() { MustParse("1.2.3") })
}

func TestZeroValueIsFullySpecified(t *testing.T) {
	var v SemVer
	assert.Equal(t, uint8(3), v.Specificity())
	assert.Equal(t, "0.0.0", v.String())
}

// =============================================================================
// Ordering
// =============================================================================

func TestCompare_NumericNotLexical(t *testing.T) {
	assert.True(t, MustParse("9.9.9").Less(MustParse("10.0.0")))
	assert.True(t, MustParse("9.0.0").Less(MustParse("10.0.0")))
	assert.True(t, MustParse("1.2.9").Less(MustParse("1.2.10")))
	assert.True(t, MustParse("1.9.0").Less(MustParse("1.10.0")))
	assert.False(t, MustParse("10.0.0").Less(MustParse("9.9.9")))
}

func TestCompare_MissingComponentsAreZero(t *testing.T) {
	assert.Equal(t, 0, Compare(MustParse("14"), MustParse("14.0.0")))
	assert.Equal(t, 0, Compare(MustParse("14.1"), MustParse("14.1.0")))
	assert.Equal(t, -1, Compare(MustParse("14"), MustParse("14.0.1")))
	assert.True(t, MustParse("14").Equal(New(14, 0, 0)))
}

func TestSortAndMax(t *testing.T) {
	vs := []SemVer{
		MustParse("15.0.0"),
		MustParse("14.0.0"),
		MustParse("14.1.5"),
		MustParse("14.1.0"),
		MustParse("14.2.0"),
	}

	Sort(vs)
	got := make([]string, len(vs))
	for i, v := range vs {
		got[i] = v.String()
	}
	assert.Equal(t, []string{"14.0.0", "14.1.0", "14.1.5", "14.2.0", "15.0.0"}, got)

	best, ok := Max(vs)
	require.True(t, ok)
	assert.Equal(t, "15.0.0", best.String())

	_, ok = Max(nil)
	assert.False(t, ok)
}

// =============================================================================
// Patterns
// =============================================================================

func TestPattern_Specificity(t *testing.T) {
	assert.Equal(t, uint8(3), Exact(1, 2, 3).Specificity())
	assert.Equal(t, uint8(2), MinorWildcard(1, 2).Specificity())
	assert.Equal(t, uint8(1), MajorWildcard(1).Specificity())
	assert.Equal(t, uint8(0), Any().Specificity())

	assert.True(t, Exact(1, 2, 3).IsExact())
	assert.False(t, MinorWildcard(1, 2).IsExact())
}

func TestPattern_String(t *testing.T) {
	assert.Equal(t, "14.1.0", Exact(14, 1, 0).String())
	assert.Equal(t, "14.1.x", MinorWildcard(14, 1).String())
	assert.Equal(t, "14.x.x", MajorWildcard(14).String())
	assert.Equal(t, "*", Any().String())
	assert.Equal(t, "minor", KindMinorWildcard.String())
}

func TestParsePattern(t *testing.T) {
	p, err := ParsePattern("14")
	require.NoError(t, err)
	assert.Equal(t, KindMajorWildcard, p.Kind())

	p, err = ParsePattern("14.1")
	require.NoError(t, err)
	assert.Equal(t, KindMinorWildcard, p.Kind())

	p, err = ParsePattern("14.1.0")
	require.NoError(t, err)
	assert.Equal(t, KindExact, p.Kind())

	p, err = ParsePattern("*")
	require.NoError(t, err)
	assert.Equal(t, KindAny, p.Kind())

	_, err = ParsePattern("14.x")
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestMatches(t *testing.T) {
	major := MustParse("14").Pattern()
	minor := MustParse("14.1").Pattern()
	exact := MustParse("14.1.0").Pattern()

	tests := []struct {
		version string
		major   bool
		minor   bool
		exact   bool
	}{
		{"14.0.0", true, false, false},
		{"14.1.0", true, true, true},
		{"14.1.5", true, true, false},
		{"14.2.0", true, false, false},
		{"15.0.0", false, false, false},
		{"1.14.0", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			v := MustParse(tt.version)
			assert.Equal(t, tt.major, v.Matches(major), "major pattern")
			assert.Equal(t, tt.minor, v.Matches(minor), "minor pattern")
			assert.Equal(t, tt.exact, v.Matches(exact), "exact pattern")
			assert.True(t, v.Matches(Any()))
		})
	}
}

func TestFallbackPatterns(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"14.1.5", []string{"14.1.5", "14.1.x", "14.x.x"}},
		{"14.1", []string{"14.1.x", "14.x.x"}},
		{"14", []string{"14.x.x"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			patterns := MustParse(tt.in).FallbackPatterns()
			got := make([]string, len(patterns))
			for i, p := range patterns {
				got[i] = p.String()
			}
			assert.Equal(t, tt.want, got)

			// Strictly decreasing specificity, never Any.
			for i := 1; i < len(patterns); i++ {
				assert.Less(t, patterns[i].Specificity(), patterns[i-1].Specificity())
			}
			for _, p := range patterns {
				assert.NotEqual(t, KindAny, p.Kind())
			}
		})
	}
}

// =============================================================================
// Constraints
// =============================================================================

func TestConstraint(t *testing.T) {
	tests := []struct {
		expr    string
		version string
		want    bool
	}{
		{">=14.1, <15", "14.1.0", true},
		{">=14.1, <15", "14.0.0", false},
		{">=14.1, <15", "15.0.0", false},
		{"^14", "14.2.0", true},
		{"^14", "15.0.0", false},
		{"~14.1", "14.1.5", true},
		{"~14.1", "14.2.0", false},
		{"14.1.0", "14.1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr+"/"+tt.version, func(t *testing.T) {
			c, err := ParseConstraint(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Check(MustParse(tt.version)))
			assert.Equal(t, tt.expr, c.String())
		})
	}
}

func TestParseConstraint_Invalid(t *testing.T) {
	_, err := ParseConstraint(">=> nonsense")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidVersion)
}
