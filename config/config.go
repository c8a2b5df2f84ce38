/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package config

import (
	"bytes"
	"io/ioutil"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/parley-im/parley/archive"
	"github.com/parley-im/parley/log"
	"github.com/parley-im/parley/transport"
	"github.com/parley-im/parley/xmpp/jid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARLEY_"

const (
	defaultPort           = 5222
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 15 * time.Second
	defaultKeepAlive      = 60 * time.Second
	defaultSendRate       = 20
	defaultMaxStanzaSize  = 256 * 1024
)

// Account represents the XMPP account credentials.
type Account struct {
	JID      string `yaml:"jid"`
	Password string `yaml:"password"`
}

// Server represents the server connection configuration.
type Server struct {
	Host           string         `yaml:"host"`
	Port           int            `yaml:"port"`
	Transport      transport.Type `yaml:"-"`
	WebSocketURL   string         `yaml:"websocket_url"`
	AllowInsecure  bool           `yaml:"allow_insecure"`
	TLSSkipVerify  bool           `yaml:"tls_skip_verify"`
	ConnectTimeout time.Duration  `yaml:"connect_timeout"`
	RequestTimeout time.Duration  `yaml:"request_timeout"`
	KeepAlive      time.Duration  `yaml:"keep_alive"`
	SendRate       float64        `yaml:"send_rate"`
	MaxStanzaSize  int            `yaml:"max_stanza_size"`
}

type serverProxyType struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Transport      string        `yaml:"transport"`
	WebSocketURL   string        `yaml:"websocket_url"`
	AllowInsecure  bool          `yaml:"allow_insecure"`
	TLSSkipVerify  bool          `yaml:"tls_skip_verify"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	SendRate       float64       `yaml:"send_rate"`
	MaxStanzaSize  int           `yaml:"max_stanza_size"`
}

// DefaultServer returns the server configuration used when none is given.
func DefaultServer() Server {
	return Server{
		Port:           defaultPort,
		Transport:      transport.Socket,
		ConnectTimeout: defaultConnectTimeout,
		RequestTimeout: defaultRequestTimeout,
		KeepAlive:      defaultKeepAlive,
		SendRate:       defaultSendRate,
		MaxStanzaSize:  defaultMaxStanzaSize,
	}
}

// UnmarshalYAML satisfies Unmarshaler interface.
func (s *Server) UnmarshalYAML(unmarshal func(interface{}) error) error {
	def := DefaultServer()
	p := serverProxyType{
		Port:           def.Port,
		ConnectTimeout: def.ConnectTimeout,
		RequestTimeout: def.RequestTimeout,
		KeepAlive:      def.KeepAlive,
		SendRate:       def.SendRate,
		MaxStanzaSize:  def.MaxStanzaSize,
	}
	if err := unmarshal(&p); err != nil {
		return err
	}
	tt, err := transport.ParseType(p.Transport)
	if err != nil {
		return err
	}
	if tt == transport.WebSocket && len(p.WebSocketURL) == 0 {
		return errors.New("config.Server: websocket_url required for websocket transport")
	}
	*s = Server{
		Host:           p.Host,
		Port:           p.Port,
		Transport:      tt,
		WebSocketURL:   p.WebSocketURL,
		AllowInsecure:  p.AllowInsecure,
		TLSSkipVerify:  p.TLSSkipVerify,
		ConnectTimeout: p.ConnectTimeout,
		RequestTimeout: p.RequestTimeout,
		KeepAlive:      p.KeepAlive,
		SendRate:       p.SendRate,
		MaxStanzaSize:  p.MaxStanzaSize,
	}
	return nil
}

// Config represents a global configuration.
type Config struct {
	Account Account        `yaml:"account"`
	Server  Server         `yaml:"server"`
	Logger  log.Config     `yaml:"logger"`
	Archive archive.Config `yaml:"archive"`
}

// envOverrides lists the settings that can be replaced from the environment.
type envOverrides struct {
	JID         string `env:"JID"`
	Password    string `env:"PASSWORD"`
	ServerHost  string `env:"SERVER_HOST"`
	ServerPort  int    `env:"SERVER_PORT"`
	LogLevel    string `env:"LOG_LEVEL"`
	ArchiveType string `env:"ARCHIVE_TYPE"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Server: DefaultServer(),
		Logger: log.Config{Level: log.InfoLevel},
		Archive: archive.Config{
			Type:     archive.Disabled,
			BadgerDB: archive.BadgerDBConfig{DataDir: archive.DefaultDataDir()},
			SQL:      archive.SQLConfig{SSLMode: "disable", PoolSize: archive.DefaultPoolSize},
		},
	}
}

// FromFile loads default global configuration from
// a specified file.
func (cfg *Config) FromFile(configFile string) error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}
	return cfg.FromBuffer(bytes.NewBuffer(b))
}

// FromBuffer loads default global configuration from
// a specified byte buffer.
func (cfg *Config) FromBuffer(buf *bytes.Buffer) error {
	return yaml.Unmarshal(buf.Bytes(), cfg)
}

// FromEnvironment applies PARLEY_ prefixed environment overrides.
func (cfg *Config) FromEnvironment() error {
	return cfg.applyEnv(env.Options{Prefix: EnvPrefix})
}

func (cfg *Config) applyEnv(opts env.Options) error {
	var ov envOverrides
	if err := env.ParseWithOptions(&ov, opts); err != nil {
		return errors.Wrap(err, "config")
	}
	if len(ov.JID) > 0 {
		cfg.Account.JID = ov.JID
	}
	if len(ov.Password) > 0 {
		cfg.Account.Password = ov.Password
	}
	if len(ov.ServerHost) > 0 {
		cfg.Server.Host = ov.ServerHost
	}
	if ov.ServerPort != 0 {
		cfg.Server.Port = ov.ServerPort
	}
	if len(ov.LogLevel) > 0 {
		lv, err := log.ParseLevel(ov.LogLevel)
		if err != nil {
			return err
		}
		cfg.Logger.Level = lv
	}
	if len(ov.ArchiveType) > 0 {
		cfg.Archive.Type = archive.Type(ov.ArchiveType)
	}
	return nil
}

// Validate checks configuration consistency.
func (cfg *Config) Validate() error {
	if len(cfg.Account.JID) == 0 {
		return errors.New("config: account jid required")
	}
	j, err := jid.NewWithString(cfg.Account.JID, false)
	if err != nil {
		return errors.Wrapf(err, "config: invalid account jid %q", cfg.Account.JID)
	}
	if len(j.Node()) == 0 {
		return errors.Errorf("config: account jid %q lacks a username", cfg.Account.JID)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return errors.Errorf("config: invalid server port: %d", cfg.Server.Port)
	}
	switch cfg.Server.Transport {
	case transport.Socket:
	case transport.WebSocket:
		if len(cfg.Server.WebSocketURL) == 0 {
			return errors.New("config: websocket_url required for websocket transport")
		}
	default:
		return errors.Errorf("config: unrecognized transport: %d", cfg.Server.Transport)
	}
	return cfg.Archive.Validate()
}
