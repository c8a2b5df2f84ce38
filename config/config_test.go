/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package config

import (
	"bytes"
	"io/ioutil"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/parley-im/parley/archive"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/transport"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	cfg1, cfg2 := Default(), Default()
	b, err := ioutil.ReadFile("./testdata/config_basic.yml")
	require.Nil(t, err)
	require.Nil(t, cfg1.FromBuffer(bytes.NewBuffer(b)))
	require.Nil(t, cfg2.FromFile("./testdata/config_basic.yml"))
	require.Equal(t, cfg1, cfg2)

	require.Equal(t, "juliet@capulet.lit/balcony", cfg1.Account.JID)
	require.Equal(t, "127.0.0.1", cfg1.Server.Host)
	require.Equal(t, 5223, cfg1.Server.Port)
	require.Equal(t, transport.Socket, cfg1.Server.Transport)
	require.True(t, cfg1.Server.AllowInsecure)
	require.Equal(t, 5*time.Second, cfg1.Server.RequestTimeout)
	require.Equal(t, time.Duration(0), cfg1.Server.KeepAlive)
	require.Equal(t, 10*time.Second, cfg1.Server.ConnectTimeout)
	require.Equal(t, log.DebugLevel, cfg1.Logger.Level)
	require.Equal(t, archive.BadgerDB, cfg1.Archive.Type)
	require.Equal(t, "/tmp/parley", cfg1.Archive.BadgerDB.DataDir)
	require.Nil(t, cfg1.Validate())
}

func TestBadConfigFile(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg.FromFile("./testdata/not_a_config.yml"))
	require.NotNil(t, cfg.FromFile("./testdata/missing.yml"))
}

func TestServerTransport(t *testing.T) {
	cfg := Default()
	require.Nil(t, cfg.FromBuffer(bytes.NewBufferString("server:\n  transport: websocket\n  websocket_url: wss://capulet.lit/xmpp-websocket\n")))
	require.Equal(t, transport.WebSocket, cfg.Server.Transport)
	require.Equal(t, 5222, cfg.Server.Port)

	require.NotNil(t, Default().FromBuffer(bytes.NewBufferString("server:\n  transport: websocket\n")))
	require.NotNil(t, Default().FromBuffer(bytes.NewBufferString("server:\n  transport: bosh\n")))
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg := Default()
	cfg.Account.JID = "juliet@capulet.lit"

	err := cfg.applyEnv(env.Options{Prefix: EnvPrefix, Environment: map[string]string{
		"PARLEY_JID":          "romeo@montague.lit/orchard",
		"PARLEY_PASSWORD":     "rosaline",
		"PARLEY_SERVER_HOST":  "xmpp.montague.lit",
		"PARLEY_SERVER_PORT":  "5269",
		"PARLEY_LOG_LEVEL":    "error",
		"PARLEY_ARCHIVE_TYPE": "none",
	}})
	require.Nil(t, err)
	require.Equal(t, "romeo@montague.lit/orchard", cfg.Account.JID)
	require.Equal(t, "rosaline", cfg.Account.Password)
	require.Equal(t, "xmpp.montague.lit", cfg.Server.Host)
	require.Equal(t, 5269, cfg.Server.Port)
	require.Equal(t, log.ErrorLevel, cfg.Logger.Level)
	require.Equal(t, archive.Disabled, cfg.Archive.Type)

	err = cfg.applyEnv(env.Options{Prefix: EnvPrefix, Environment: map[string]string{"PARLEY_LOG_LEVEL": "verbose"}})
	require.NotNil(t, err)

	err = cfg.applyEnv(env.Options{Prefix: EnvPrefix, Environment: map[string]string{"PARLEY_SERVER_PORT": "http"}})
	require.NotNil(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg.Validate())

	cfg.Account.JID = "capulet.lit"
	require.NotNil(t, cfg.Validate())

	cfg.Account.JID = "juliet@capulet.lit"
	require.Nil(t, cfg.Validate())

	cfg.Server.Port = 70000
	require.NotNil(t, cfg.Validate())
	cfg.Server.Port = 5222

	cfg.Archive.Type = "redis"
	require.NotNil(t, cfg.Validate())
}
