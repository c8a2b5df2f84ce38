/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package jid_test

import (
	"strings"
	"testing"

	"github.com/parley-im/parley/xmpp/jid"
	"github.com/stretchr/testify/require"
)

func TestBadJID(t *testing.T) {
	_, err := jid.NewWithString("romeo@", false)
	require.NotNil(t, err)
	_, err = jid.NewWithString("@montague.lit", false)
	require.NotNil(t, err)
	_, err = jid.NewWithString("romeo@montague.lit/", false)
	require.NotNil(t, err)

	longStr := strings.Repeat("a", 1074)
	_, err = jid.New(longStr, "montague.lit", "res", false)
	require.NotNil(t, err)
	_, err = jid.New("romeo", longStr, "res", false)
	require.NotNil(t, err)
	_, err = jid.New("romeo", "montague.lit", longStr, false)
	require.NotNil(t, err)
	_, err = jid.New("ro<meo", "montague.lit", "", false)
	require.NotNil(t, err)
}

func TestNewJIDString(t *testing.T) {
	j, err := jid.NewWithString("Romeo@Montague.lit/Balcony", false)
	require.Nil(t, err)
	require.Equal(t, "romeo", j.Node())
	require.Equal(t, "montague.lit", j.Domain())
	require.Equal(t, "Balcony", j.Resource())
	require.Equal(t, "romeo@montague.lit", j.ToBareJID().String())
	require.Equal(t, "romeo@montague.lit/Balcony", j.String())
	require.True(t, j.IsFullWithUser())
	require.False(t, j.IsBare())
}

func TestResourceWithSlash(t *testing.T) {
	j, err := jid.NewWithString("juliet@capulet.lit/phone/2", false)
	require.Nil(t, err)
	require.Equal(t, "capulet.lit", j.Domain())
	require.Equal(t, "phone/2", j.Resource())
}

func TestServerJID(t *testing.T) {
	j, err := jid.NewWithString("capulet.lit", false)
	require.Nil(t, err)
	require.True(t, j.IsServer())
	require.Equal(t, "capulet.lit", j.String())
}

func TestEmptyJID(t *testing.T) {
	j, err := jid.NewWithString("", true)
	require.Nil(t, err)
	require.Equal(t, "", j.String())
}

func TestMatchesJID(t *testing.T) {
	j1 := jid.MustParse("romeo@montague.lit/orchard")
	j2 := jid.MustParse("romeo@montague.lit/balcony")
	require.True(t, j1.Matches(j2, jid.MatchesBare))
	require.False(t, j1.Matches(j2, jid.MatchesFull))
	require.False(t, j1.Matches(nil, jid.MatchesBare))

	j3, err := j2.WithResource("orchard")
	require.Nil(t, err)
	require.True(t, j1.Matches(j3, jid.MatchesFull))
}
