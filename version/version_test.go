/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package version_test

import (
	"testing"

	"github.com/parley-im/parley/version"
	"github.com/stretchr/testify/require"
)

func TestNewVersion(t *testing.T) {
	v1 := version.NewVersion(1, 9, 2)
	require.Equal(t, "1.9.2", v1.String())
}

func TestUserAgent(t *testing.T) {
	require.Equal(t, "parley/"+version.ApplicationVersion.String(), version.UserAgent())
}
