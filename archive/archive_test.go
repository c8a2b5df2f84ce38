/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package archive

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parley-im/parley/xmpp"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

func TestNewRecord(t *testing.T) {
	msg := xmpp.NewMessage("m1", xmpp.ChatType, jid.MustParse("romeo@montague.lit/orchard"), "Art thou not Romeo?")
	r := NewRecord("juliet@capulet.lit", msg, Outgoing)
	require.Equal(t, "m1", r.ID)
	require.Equal(t, "romeo@montague.lit", r.Peer)
	require.Equal(t, Outgoing, r.Direction)
	require.Equal(t, xmpp.ChatType, r.Type)
	require.Equal(t, "Art thou not Romeo?", r.Body)
	require.False(t, r.Stamp.IsZero())
	require.True(t, strings.Contains(r.String(), "-> romeo@montague.lit: Art thou not Romeo?"))

	msg.SetFromJID(jid.MustParse("romeo@montague.lit/garden"))
	r = NewRecord("juliet@capulet.lit", msg, Incoming)
	require.Equal(t, "romeo@montague.lit", r.Peer)
	require.True(t, strings.Contains(r.String(), "<- romeo@montague.lit"))
}

func TestConfig(t *testing.T) {
	var cfg Config
	require.Nil(t, yaml.Unmarshal([]byte("{}"), &cfg))
	require.Equal(t, Disabled, cfg.Type)
	require.Equal(t, DefaultDataDir(), cfg.BadgerDB.DataDir)
	require.Equal(t, DefaultPoolSize, cfg.SQL.PoolSize)

	require.Nil(t, yaml.Unmarshal([]byte("type: pgsql\nsql: {host: localhost:5432, database: parley}\n"), &cfg))
	require.Equal(t, PostgreSQL, cfg.Type)
	require.Equal(t, "disable", cfg.SQL.SSLMode)

	require.NotNil(t, yaml.Unmarshal([]byte("type: mysql\n"), &cfg))
	require.NotNil(t, yaml.Unmarshal([]byte("type: redis\n"), &cfg))
}

func TestDefaultDataDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.Equal(t, filepath.Join(home, ".parley", "archive"), DefaultDataDir())

	var cfg Config
	require.Nil(t, yaml.Unmarshal([]byte("type: badgerdb\n"), &cfg))
	require.Equal(t, filepath.Join(home, ".parley", "archive"), cfg.BadgerDB.DataDir)

	t.Setenv("HOME", "")
	require.Equal(t, filepath.Join(".parley", "archive"), DefaultDataDir())
}

func TestDisabled(t *testing.T) {
	a, err := New(&Config{Type: Disabled})
	require.Nil(t, err)
	require.Nil(t, a.Store(context.Background(), Record{Body: "hi"}))
	records, err := a.Fetch(context.Background(), "juliet@capulet.lit", "romeo@montague.lit", 10)
	require.Nil(t, err)
	require.Len(t, records, 0)
	require.Nil(t, a.Close(context.Background()))

	_, err = New(&Config{Type: "redis"})
	require.NotNil(t, err)
}
