/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package version

import (
	"fmt"
)

// ApplicationName is the name the client advertises to other entities.
const ApplicationName = "parley"

// ApplicationVersion represents application version.
var ApplicationVersion = NewVersion(0, 3, 1)

// SemanticVersion represents a semantic version (major.minor.patch).
type SemanticVersion struct {
	major uint
	minor uint
	patch uint
}

// NewVersion returns a new semantic version.
func NewVersion(major, minor, patch uint) *SemanticVersion {
	return &SemanticVersion{
		major: major,
		minor: minor,
		patch: patch,
	}
}

func (v *SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.major, v.minor, v.patch)
}

// UserAgent returns the name/version pair sent to other entities.
func UserAgent() string {
	return ApplicationName + "/" + ApplicationVersion.String()
}
