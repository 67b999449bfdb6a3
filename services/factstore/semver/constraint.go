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
	"fmt"

	msemver "github.com/Masterminds/semver/v3"
)

// Constraint is a range expression such as ">=14.1, <15", "^14" or "~14.1".
//
// Range syntax is delegated to Masterminds/semver; only the numeric
// components of stored versions take part in the check.
type Constraint struct {
	raw string
	c   *msemver.Constraints
}

// ParseConstraint compiles a range expression.
//
// Outputs:
//
//	*Constraint - The compiled constraint.
//	error - *VersionError (errors.Is ErrInvalidVersion) if expr is malformed.
func ParseConstraint(expr string) (*Constraint, error) {
	c, err := msemver.NewConstraint(expr)
	if err != nil {
		return nil, &VersionError{Input: expr, Reason: fmt.Sprintf("bad constraint: %v", err)}
	}
	return &Constraint{raw: expr, c: c}, nil
}

// Check reports whether v satisfies the constraint.
func (c *Constraint) Check(v SemVer) bool {
	return c.c.Check(msemver.New(v.Major, v.Minor, v.Patch, "", ""))
}

// String returns the expression as written.
func (c *Constraint) String() string {
	return c.raw
}
