/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
)

// Type represents a stream transport type.
type Type int

const (
	// Socket represents a socket transport type.
	Socket Type = iota + 1

	// WebSocket represents a websocket transport type.
	WebSocket
)

// String returns Type string representation.
func (tt Type) String() string {
	switch tt {
	case Socket:
		return "socket"
	case WebSocket:
		return "websocket"
	}
	return ""
}

// ParseType maps a transport name into its Type value.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "socket":
		return Socket, nil
	case "websocket":
		return WebSocket, nil
	}
	return 0, fmt.Errorf("transport: unrecognized transport type: %s", s)
}

// Transport represents a stream transport mechanism.
//
// Read is meant to be used by a single consumer. Write may be called
// concurrently; every call is delivered to the peer as a whole.
type Transport interface {
	io.ReadWriteCloser

	// Type returns transport type value.
	Type() Type

	// SupportsStartTLS tells whether the transport can be upgraded in-band.
	SupportsStartTLS() bool

	// StartTLS secures the transport using SSL/TLS acting as client.
	// It must be invoked from the reading goroutine.
	StartTLS(ctx context.Context, cfg *tls.Config) error

	// ConnectionState returns the TLS connection state, if the transport is secured.
	ConnectionState() (tls.ConnectionState, bool)
}

// ConnectError is returned when a transport connection can not be established.
// Callers may retry.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: unable to connect to %s: %v", e.Addr, e.Err)
}

// Unwrap returns the underlying dial error.
func (e *ConnectError) Unwrap() error { return e.Err }

// TLSError is returned when the TLS handshake fails.
type TLSError struct {
	Err error
}

func (e *TLSError) Error() string {
	return fmt.Sprintf("transport: TLS negotiation failed: %v", e.Err)
}

// Unwrap returns the underlying handshake error.
func (e *TLSError) Unwrap() error { return e.Err }
