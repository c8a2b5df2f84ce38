/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/parley-im/parley/log"
	"github.com/pkg/errors"
)

const (
	defaultClientPort     = 5222
	defaultConnectTimeout = 10 * time.Second
)

// DialConfig represents a transport connection configuration.
type DialConfig struct {
	// Domain is the XMPP service domain being connected to.
	Domain string

	// Host and Port override DNS SRV discovery when Host is set.
	Host string
	Port int

	Type Type

	// WebSocketURL is the RFC 7395 endpoint used by websocket transports.
	WebSocketURL string

	// TLSConfig is used for wss:// endpoints.
	TLSConfig *tls.Config

	ConnectTimeout time.Duration
}

var lookupSRV = net.DefaultResolver.LookupSRV

// Dial establishes a transport connection to the configured XMPP service.
// A failed attempt is reported as *ConnectError.
func Dial(ctx context.Context, cfg *DialConfig) (Transport, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if cfg.Type == WebSocket {
		return dialWebSocket(ctx, cfg, timeout)
	}
	addrs := resolve(ctx, cfg)

	dialer := &net.Dialer{Timeout: timeout}
	var lastErr error
	for _, addr := range addrs {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			log.Debugf("transport: dial %s failed: %v", addr, err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		log.Debugf("transport: connected to %s", addr)
		return NewSocketTransport(conn), nil
	}
	return nil, &ConnectError{Addr: strings.Join(addrs, ","), Err: lastErr}
}

// resolve returns candidate addresses ordered by preference.
func resolve(ctx context.Context, cfg *DialConfig) []string {
	if len(cfg.Host) > 0 {
		port := cfg.Port
		if port == 0 {
			port = defaultClientPort
		}
		return []string{net.JoinHostPort(cfg.Host, strconv.Itoa(port))}
	}
	var addrs []string

	// LookupSRV already sorts records by priority and randomizes by weight.
	_, srvs, err := lookupSRV(ctx, "xmpp-client", "tcp", cfg.Domain)
	if err != nil {
		log.Debugf("transport: SRV lookup for %s failed: %v", cfg.Domain, err)
	}
	for _, srv := range srvs {
		target := strings.TrimSuffix(srv.Target, ".")
		if target == "" {
			// RFC 6120 §3.2.1: service decidedly not available
			continue
		}
		addrs = append(addrs, net.JoinHostPort(target, strconv.Itoa(int(srv.Port))))
	}
	if len(addrs) == 0 {
		addrs = append(addrs, net.JoinHostPort(cfg.Domain, strconv.Itoa(defaultClientPort)))
	}
	return addrs
}

func dialWebSocket(ctx context.Context, cfg *DialConfig, timeout time.Duration) (Transport, error) {
	if len(cfg.WebSocketURL) == 0 {
		return nil, &ConnectError{Addr: cfg.Domain, Err: errors.New("missing websocket url")}
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
		Subprotocols:     []string{webSocketSubprotocol},
		TLSClientConfig:  cfg.TLSConfig,
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.WebSocketURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, &ConnectError{Addr: cfg.WebSocketURL, Err: err}
	}
	if conn.Subprotocol() != webSocketSubprotocol {
		_ = conn.Close()
		return nil, &ConnectError{
			Addr: cfg.WebSocketURL,
			Err:  errors.Errorf("server negotiated subprotocol %q", conn.Subprotocol()),
		}
	}
	return NewWebSocketTransport(conn), nil
}
