/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package app

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/parley-im/parley/version"
	"github.com/stretchr/testify/require"
)

type writerBuffer struct {
	mu  sync.RWMutex
	buf *bytes.Buffer
}

func newWriterBuffer() *writerBuffer {
	return &writerBuffer{buf: bytes.NewBuffer(nil)}
}

func (wb *writerBuffer) Write(p []byte) (int, error) {
	wb.mu.Lock()
	defer wb.mu.Unlock()
	return wb.buf.Write(p)
}

func (wb *writerBuffer) String() string {
	wb.mu.RLock()
	defer wb.mu.RUnlock()
	return wb.buf.String()
}

func TestApplicationEmptyArgs(t *testing.T) {
	ap := New(nil, nil)
	require.NotNil(t, ap)
	require.NotNil(t, ap.Run())
}

func TestApplicationShowUsage(t *testing.T) {
	w := newWriterBuffer()
	err := New(w, []string{"./parley", "-h"}).Run()
	require.Nil(t, err)
	require.Equal(t, expectedUsageString(), w.String())
}

func TestApplicationPrintVersion(t *testing.T) {
	w := newWriterBuffer()
	err := New(w, []string{"./parley", "--version"}).Run()
	require.Nil(t, err)
	require.Equal(t, fmt.Sprintf("parley/%v\n", version.ApplicationVersion), w.String())
}

func TestApplicationUnknownFlag(t *testing.T) {
	w := newWriterBuffer()
	err := New(w, []string{"./parley", "--frobnicate"}).Run()
	require.NotNil(t, err)
}

func TestApplicationMissingConfigFile(t *testing.T) {
	err := New(newWriterBuffer(), []string{"./parley", "-c", "testdata/not_found.yml"}).Run()
	require.NotNil(t, err)
}

func TestApplicationInvalidAccount(t *testing.T) {
	args := []string{"./parley", "--config=testdata/config_nopassword.yml", "--jid", "capulet.lit"}
	err := New(newWriterBuffer(), args).Run()
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "lacks a username")
}

func TestApplicationPasswordPrompt(t *testing.T) {
	var prompted bool
	ap := New(newWriterBuffer(), []string{"./parley", "--config=testdata/config_nopassword.yml"})
	ap.readPassword = func() (string, error) {
		prompted = true
		return "", errors.New("no terminal")
	}
	err := ap.Run()
	require.True(t, prompted)
	require.NotNil(t, err)
	require.Equal(t, "no terminal", err.Error())
}

func TestApplication_LoadConfig(t *testing.T) {
	ap := New(newWriterBuffer(), nil)
	cfg, err := ap.loadConfig("testdata/config_nopassword.yml", "romeo@montague.lit", true)
	require.Nil(t, err)
	require.Equal(t, "romeo@montague.lit", cfg.Account.JID)
	require.Equal(t, "debug", cfg.Logger.Level.String())
	require.Equal(t, 5222, cfg.Server.Port)
}

func expectedUsageString() string {
	var r string
	for i := range logoStr {
		r += fmt.Sprintf("%s\n", logoStr[i])
	}
	r += fmt.Sprintf("%s\n", usageStr)
	return r
}
