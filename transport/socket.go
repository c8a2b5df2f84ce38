/*
 * Copyright (c) 2020 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"
)

const socketBuffSize = 4096

var errAlreadySecured = errors.New("transport: connection already secured")

type socketTransport struct {
	mu        sync.Mutex // guards conn writes
	connMu    sync.Mutex // guards conn swaps
	conn      net.Conn
	br        *bufio.Reader
	closeOnce sync.Once
	closeErr  error
}

// NewSocketTransport creates a socket class stream transport.
func NewSocketTransport(conn net.Conn) Transport {
	return &socketTransport{
		conn: conn,
		br:   bufio.NewReaderSize(conn, socketBuffSize),
	}
}

func (s *socketTransport) Type() Type {
	return Socket
}

func (s *socketTransport) Read(p []byte) (n int, err error) {
	return s.br.Read(p)
}

func (s *socketTransport) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Write(p)
}

func (s *socketTransport) Close() error {
	s.closeOnce.Do(func() {
		// mu is held for the whole TLS handshake, which closing conn interrupts
		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		s.closeErr = conn.Close()
	})
	return s.closeErr
}

func (s *socketTransport) SupportsStartTLS() bool {
	return true
}

func (s *socketTransport) StartTLS(ctx context.Context, cfg *tls.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conn.(*tls.Conn); ok {
		return &TLSError{Err: errAlreadySecured}
	}
	tlsConn := tls.Client(s.conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return &TLSError{Err: err}
	}
	s.connMu.Lock()
	s.conn = tlsConn
	s.connMu.Unlock()
	s.br.Reset(tlsConn)
	return nil
}

func (s *socketTransport) ConnectionState() (tls.ConnectionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tlsConn, ok := s.conn.(*tls.Conn); ok {
		return tlsConn.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}
