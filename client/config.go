/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package client

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/parley-im/parley/archive"
	"github.com/parley-im/parley/config"
	"github.com/parley-im/parley/session"
	"github.com/parley-im/parley/transport"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
)

const defaultEventBuffer = 64

// DialFunc establishes the transport a session runs over.
type DialFunc func(ctx context.Context, cfg *transport.DialConfig) (transport.Transport, error)

// Config represents a client configuration.
type Config struct {
	JID      *jid.JID
	Password string

	Dial      transport.DialConfig
	TLSConfig *tls.Config

	AllowInsecure  bool
	RequestTimeout time.Duration
	KeepAlive      time.Duration
	SendRate       float64
	MaxStanzaSize  int

	// Archive stores exchanged messages. Nil disables history.
	Archive archive.Archive

	// EventBuffer sizes the console event queue.
	EventBuffer int

	// Dialer replaces transport.Dial when set.
	Dialer DialFunc

	OnStateChange func(session.State)
}

// NewConfig derives a client configuration from the application configuration.
func NewConfig(cfg *config.Config) (*Config, error) {
	j, err := jid.NewWithString(cfg.Account.JID, false)
	if err != nil {
		return nil, errors.Wrapf(err, "client: invalid account jid %q", cfg.Account.JID)
	}
	tlsCfg := &tls.Config{
		ServerName:         j.Domain(),
		InsecureSkipVerify: cfg.Server.TLSSkipVerify,
	}
	return &Config{
		JID:      j,
		Password: cfg.Account.Password,
		Dial: transport.DialConfig{
			Domain:         j.Domain(),
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			Type:           cfg.Server.Transport,
			WebSocketURL:   cfg.Server.WebSocketURL,
			TLSConfig:      tlsCfg,
			ConnectTimeout: cfg.Server.ConnectTimeout,
		},
		TLSConfig:      tlsCfg,
		AllowInsecure:  cfg.Server.AllowInsecure,
		RequestTimeout: cfg.Server.RequestTimeout,
		KeepAlive:      cfg.Server.KeepAlive,
		SendRate:       cfg.Server.SendRate,
		MaxStanzaSize:  cfg.Server.MaxStanzaSize,
	}, nil
}
